// Command vidpipe-demo plays a synthetic stream through the full pipeline:
// decoder, renderer, overlay and render loop.
//
// Without -window it runs headless on the noop backend, which exercises
// every stage without a display.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	_ "github.com/gogpu/wgpu/hal/allbackends"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vidpipe"
	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/decode/synthetic"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/loop"
	"github.com/gogpu/vidpipe/render"
	"github.com/gogpu/vidpipe/shadercache"
	"github.com/gogpu/vidpipe/ui"
	"github.com/gogpu/vidpipe/vlog"
)

func main() {
	var (
		width    = flag.Int("width", 1920, "stream width")
		height   = flag.Int("height", 1080, "stream height")
		frames   = flag.Int("frames", 300, "packets to play, 0 for endless")
		fps      = flag.Int("fps", 60, "packet rate")
		hevc     = flag.Bool("hevc", true, "decode HEVC instead of H.264")
		hdr      = flag.Bool("hdr", false, "request an HDR device and PQ output")
		hwDecode = flag.Bool("hwdecode", true, "prefer hardware decoding")
		quality  = flag.Int("quality", int(render.QualityDefault), "quality preset (0 fast, 1 default, 2 high)")
		aspect   = flag.Int("aspect", int(render.AspectNormal), "aspect policy (0 normal, 1 stretched, 2 zoomed)")
		mode     = flag.Int("present", int(gpu.PresentModeBest), "present mode (-1 best, 0 immediate, 1 mailbox, 2 fifo, 3 fifo relaxed)")
		vsync    = flag.Bool("vsync", true, "prefer vsync present modes")
		locale   = flag.String("locale", "en-US", "overlay label locale")
		corrupt  = flag.Int("corrupt-every", 0, "corrupt every n-th packet, 0 disables")
		cacheAt  = flag.String("shader-cache", "", "shader cache file")
		level    = flag.Int("log-level", int(vlog.LevelInfo), "log level (0 none .. 6 trace)")
		display  = flag.Uint64("display", 0, "native display handle")
		window   = flag.Uint64("window", 0, "native window handle, 0 runs headless")
	)
	flag.Parse()

	vidpipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg := config{
		width: *width, height: *height, frames: *frames, fps: *fps,
		hdr: *hdr, hwDecode: *hwDecode,
		quality: render.Quality(*quality), aspect: render.Aspect(*aspect),
		mode: gpu.PresentMode(*mode), vsync: *vsync,
		locale: *locale, corrupt: *corrupt, cachePath: *cacheAt,
		level: vlog.ParseLevel(*level),
		display: uintptr(*display), window: uintptr(*window),
		codec: decode.CodecH264,
	}
	if *hevc {
		cfg.codec = decode.CodecHEVC
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("vidpipe-demo: %v", err)
	}
}

type config struct {
	width, height int
	frames, fps   int
	codec         decode.Codec
	hdr           bool
	hwDecode      bool
	quality       render.Quality
	aspect        render.Aspect
	mode          gpu.PresentMode
	vsync         bool
	locale        string
	corrupt       int
	cachePath     string
	level         vlog.Level
	display       uintptr
	window        uintptr
}

func run(ctx context.Context, cfg config) error {
	var rt *vidpipe.Runtime
	if cfg.window == 0 {
		rt = vidpipe.NewRuntime(vidpipe.WithBackends(noop.API{}))
	} else {
		rt = vidpipe.NewRuntime()
	}
	synthetic.Register(rt.Decoders())
	backend, err := rt.Backend()
	if err != nil {
		return err
	}

	logger := vlog.New(cfg.level, func(l vlog.Level, msg string) {
		log.Printf("%-5s %s", l, msg)
	}, vlog.WithGraph(rt.Graph()))
	defer logger.Close()

	inst, err := gpu.NewInstance(logger, gpu.WindowingDefault, gpu.WithBackend(backend))
	if err != nil {
		return err
	}
	defer inst.Destroy()

	surface, err := inst.CreateSurface(cfg.display, cfg.window, nil)
	if err != nil {
		return err
	}
	defer surface.Destroy()

	req := gpu.DecoderRequirements{Codec: cfg.codec, Hardware: cfg.hwDecode}
	dev, err := gpu.NewDevice(inst, logger, surface, req, cfg.hdr)
	if err != nil && req.Hardware {
		log.Printf("no device decodes %s in hardware, retrying with software decode", cfg.codec)
		req.Hardware = false
		dev, err = gpu.NewDevice(inst, logger, surface, req, cfg.hdr)
	}
	if err != nil {
		return err
	}
	defer dev.Destroy()

	var cache *shadercache.Cache
	if cfg.cachePath != "" {
		if cache, err = shadercache.New(logger, shadercache.DefaultMaxSize); err != nil {
			return err
		}
		defer cache.Destroy()
		if err := cache.Attach(dev); err != nil {
			return err
		}
		cache.Load(cfg.cachePath)
		defer func() {
			if err := cache.Save(cfg.cachePath); err != nil {
				log.Printf("save shader cache: %v", err)
			}
		}()
	}

	sc, err := gpu.NewSwapchain(dev, surface, gpu.SwapchainConfig{
		Mode:   cfg.mode,
		VSync:  cfg.vsync,
		Width:  cfg.width,
		Height: cfg.height,
	})
	if err != nil {
		return err
	}
	defer sc.Destroy()

	r, err := render.NewRenderer(dev, logger, cache)
	if err != nil {
		return err
	}
	defer r.Destroy()
	r.SetQualityPreset(cfg.quality)
	r.SetAspect(cfg.aspect)

	overlay, err := ui.NewOverlay(dev, logger, cfg.locale)
	if err != nil {
		return err
	}
	defer overlay.Destroy()

	src, err := decode.NewSource(logger, decode.WithRegistry(rt.Decoders()))
	if err != nil {
		return err
	}
	defer src.Destroy()

	buf := make([]byte, synthetic.PacketSize)
	l, err := loop.New(logger, loop.Config{
		Device:    dev,
		Swapchain: sc,
		Renderer:  r,
		Source:    src,
		Overlay:   overlay,
		Width:     cfg.width,
		Height:    cfg.height,
		HDR:       cfg.hdr && sc.HDR(),
		Range:     render.RangeCodeLimited,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	listener := decode.ListenerFuncs{
		FirstFrameDecoded: func() { l.SetUIState(ui.DefaultState()) },
		IDRFrameNeeded:    func() { log.Printf("decoder lost sync, waiting for the next keyframe") },
	}
	ok := src.Initialize(decode.Config{
		Surface:        dev,
		Input:          buf,
		Listener:       listener,
		Codec:          cfg.codec,
		Width:          cfg.width,
		Height:         cfg.height,
		UseSoftware:    !req.Hardware,
		EnableFallback: true,
	})
	if !ok {
		return fmt.Errorf("decoder initialization failed")
	}

	waiting := ui.DefaultState()
	waiting.ShowPopup = true
	waiting.Popup.Title = "vidpipe"
	waiting.Popup.Message = "Waiting for the first frame"
	l.SetUIState(waiting)

	stream := &synthetic.Stream{
		Buf:          buf,
		Count:        cfg.frames,
		CorruptEvery: cfg.corrupt,
	}
	if cfg.fps > 0 {
		stream.Interval = time.Second / time.Duration(cfg.fps)
	}

	start := time.Now()
	err = l.RunPipeline(ctx, stream)
	st := l.Stats()
	log.Printf("decoded %d, presented %d, dropped %d, skipped %d in %v",
		st.Decoded, st.Presented, st.Dropped, st.Skipped, time.Since(start).Round(time.Millisecond))
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
