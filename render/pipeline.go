package render

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/shadercache"
)

// pipelines holds the GPU objects shared by every frame of a renderer.
// Render pipelines depend on the target format and are built on first use.
type pipelines struct {
	device hal.Device
	cache  *shadercache.Cache
	log    *slog.Logger

	videoShader   hal.ShaderModule
	overlayShader hal.ShaderModule

	videoLayout   hal.BindGroupLayout
	overlayLayout hal.BindGroupLayout
	videoPipe     hal.PipelineLayout
	overlayPipe   hal.PipelineLayout

	nearest hal.Sampler
	linear  hal.Sampler

	byFormat map[gputypes.TextureFormat]*targetPipelines

	// spirv counts modules built from cached SPIR-V rather than WGSL.
	spirv int
}

type targetPipelines struct {
	video   hal.RenderPipeline
	overlay hal.RenderPipeline
}

func newPipelines(device hal.Device, cache *shadercache.Cache, log *slog.Logger) (*pipelines, error) {
	p := &pipelines{
		device:   device,
		cache:    cache,
		log:      log,
		byFormat: make(map[gputypes.TextureFormat]*targetPipelines),
	}
	if err := p.create(); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *pipelines) create() error {
	var err error
	if p.videoShader, err = p.shaderModule("video", videoShaderSource); err != nil {
		return err
	}
	if p.overlayShader, err = p.shaderModule("overlay", overlayShaderSource); err != nil {
		return err
	}

	// Video: params, sampler, then the Y, U and V planes. Semi-planar
	// formats bind their UV plane as both U and V.
	p.videoLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "video_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0),
			samplerEntry(1),
			textureEntry(2),
			textureEntry(3),
			textureEntry(4),
		},
	})
	if err != nil {
		return fmt.Errorf("render: create video layout: %w", err)
	}
	p.overlayLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "overlay_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0),
			samplerEntry(1),
			textureEntry(2),
		},
	})
	if err != nil {
		return fmt.Errorf("render: create overlay layout: %w", err)
	}

	p.videoPipe, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "video_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.videoLayout},
	})
	if err != nil {
		return fmt.Errorf("render: create video pipeline layout: %w", err)
	}
	p.overlayPipe, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "overlay_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.overlayLayout},
	})
	if err != nil {
		return fmt.Errorf("render: create overlay pipeline layout: %w", err)
	}

	if p.nearest, err = p.sampler("nearest", gputypes.FilterModeNearest); err != nil {
		return err
	}
	if p.linear, err = p.sampler("linear", gputypes.FilterModeLinear); err != nil {
		return err
	}
	return nil
}

// shaderModule prefers SPIR-V from the shader cache and falls back to
// handing WGSL to the HAL when the cache is absent or cannot compile.
func (p *pipelines) shaderModule(label, wgsl string) (hal.ShaderModule, error) {
	src := hal.ShaderSource{WGSL: wgsl}
	if p.cache != nil {
		words, hit, err := p.cache.Module(shadercache.Key{
			Label:       label,
			WGSL:        wgsl,
			EntryPoints: []string{"vs_main", "fs_main"},
		})
		switch {
		case err != nil:
			p.log.Debug("shader cache unavailable, using WGSL", "shader", label, "err", err)
		default:
			src = hal.ShaderSource{SPIRV: words}
			p.spirv++
			p.log.Debug("shader from cache", "shader", label, "hit", hit)
		}
	}
	m, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("render: compile %s shader: %w", label, err)
	}
	return m, nil
}

func (p *pipelines) sampler(label string, filter gputypes.FilterMode) (hal.Sampler, error) {
	s, err := p.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create %s sampler: %w", label, err)
	}
	return s, nil
}

// samplerFor returns the video sampler of a quality preset.
func (p *pipelines) samplerFor(q Quality) hal.Sampler {
	if q == QualityFast {
		return p.nearest
	}
	return p.linear
}

// forTarget returns the render pipelines for format, building them once.
func (p *pipelines) forTarget(format gputypes.TextureFormat) (*targetPipelines, error) {
	if tp, ok := p.byFormat[format]; ok {
		return tp, nil
	}
	video, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "video_pipeline",
		Layout: p.videoPipe,
		Vertex: hal.VertexState{Module: p.videoShader, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module:     p.videoShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("render: create video pipeline: %w", err)
	}

	// Overlay textures carry straight alpha.
	blend := gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
	}
	overlay, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "overlay_pipeline",
		Layout: p.overlayPipe,
		Vertex: hal.VertexState{Module: p.overlayShader, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module:     p.overlayShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		p.device.DestroyRenderPipeline(video)
		return nil, fmt.Errorf("render: create overlay pipeline: %w", err)
	}

	tp := &targetPipelines{video: video, overlay: overlay}
	p.byFormat[format] = tp
	p.log.Debug("pipelines built", "format", uint32(format))
	return tp, nil
}

// destroy releases everything in reverse creation order.
func (p *pipelines) destroy() {
	for f, tp := range p.byFormat {
		p.device.DestroyRenderPipeline(tp.overlay)
		p.device.DestroyRenderPipeline(tp.video)
		delete(p.byFormat, f)
	}
	if p.linear != nil {
		p.device.DestroySampler(p.linear)
		p.linear = nil
	}
	if p.nearest != nil {
		p.device.DestroySampler(p.nearest)
		p.nearest = nil
	}
	if p.overlayPipe != nil {
		p.device.DestroyPipelineLayout(p.overlayPipe)
		p.overlayPipe = nil
	}
	if p.videoPipe != nil {
		p.device.DestroyPipelineLayout(p.videoPipe)
		p.videoPipe = nil
	}
	if p.overlayLayout != nil {
		p.device.DestroyBindGroupLayout(p.overlayLayout)
		p.overlayLayout = nil
	}
	if p.videoLayout != nil {
		p.device.DestroyBindGroupLayout(p.videoLayout)
		p.videoLayout = nil
	}
	if p.overlayShader != nil {
		p.device.DestroyShaderModule(p.overlayShader)
		p.overlayShader = nil
	}
	if p.videoShader != nil {
		p.device.DestroyShaderModule(p.videoShader)
		p.videoShader = nil
	}
}

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func samplerEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

func textureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}
