// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render draws decoded video frames, and the UI overlay over them,
// into swapchain images.
//
// # Color
//
// Every RenderFrame call carries its own transfer and range codes; nothing
// about color persists between calls. ST2084 content is treated as PQ with
// BT.2020 primaries and matrix, everything else as gamma 2.2 BT.709. Limited
// range is the default. Targets with a float or sRGB format receive linear
// light; other targets receive display-encoded values.
//
// # Aspect and quality
//
// The aspect policy (Normal, Stretched, Zoomed) and quality preset (Fast,
// Default, High) are renderer state. Unknown values are logged and ignored.
// See Viewport for the exact mapping.
//
// # Frames
//
// Software frames are uploaded into plane textures owned by the renderer.
// Hardware frames are sampled through the views the decoder produced.
// Frames are never released by the renderer.
//
// # Lifetime
//
// A Renderer depends on its Device and Logger and must be destroyed first.
// Device loss observed while submitting or presenting marks the device lost;
// every later call returns false.
package render
