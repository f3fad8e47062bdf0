// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package loop sequences decoding and presentation.
//
// A Loop runs two goroutines. Pump reads packets, decodes them and posts
// each frame into a one-slot mailbox; a frame that was never drawn is
// released when a newer one arrives. Run waits for a frame, acquires a
// surface image, renders the frame (with the overlay when enabled) and
// presents it, then releases the frame. RunPipeline runs both.
//
// Resize, HDR, quality, aspect and overlay changes are queued and applied
// by Run between frames, so the swapchain is never reconfigured under an
// in-flight frame. The overlay state is a published snapshot: only the
// latest SetUIState is drawn.
//
// Device loss is final. Run logs it once at FATAL level, draws nothing
// further and returns ErrDeviceLost; Pump stops producing.
package loop
