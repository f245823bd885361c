package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-gst/go-gst/gst"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/will7200/ssdtf/detect"
	"github.com/will7200/ssdtf/element"
	"github.com/will7200/ssdtf/internal/metrics"
	"github.com/will7200/ssdtf/internal/probe"
	"github.com/will7200/ssdtf/internal/rtsp"
	"github.com/will7200/ssdtf/internal/version"
	"github.com/will7200/ssdtf/pipeline"
	"github.com/will7200/ssdtf/plugin"
)

var (
	flagSet       = new(flag.FlagSet)
	internalUsage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	envPrefix = "ssdtf-"
)

// flagNameFromEnvironmentName gets the variable from the environment
// starting with the envPrefix, not case-ensitive
func flagNameFromEnvironmentName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	if strings.HasPrefix(s, envPrefix) {
		return strings.TrimPrefix(s, envPrefix)
	}
	return ""
}

func main() {
	flag.Usage = internalUsage
	// a missing .env is fine, the environment and flags still apply
	_ = godotenv.Load()

	var (
		showVersion    = flagSet.BoolP("version", "v", false, "prints the version of ssdtf")
		help           = flagSet.BoolP("help", "h", false, "show this help message")
		debug          = flagSet.BoolP("debug", "d", false, "debug logging")
		gstLog         = flagSet.Bool("gst-log", false, "route gstreamer debug output through the logger")
		input          = flagSet.StringP("input", "i", "", "uri to decode, a test pattern is used when empty")
		numBuffers     = flagSet.Int("num-buffers", -1, "frames of the test pattern to produce, -1 for unlimited")
		output         = flagSet.StringP("output", "o", "fakesink", "gstreamer element factory receiving the processed stream")
		factory        = flagSet.StringP("element", "e", plugin.DetectorFactory, "element factory to run (ssdtf or ssmbd)")
		mode           = flagSet.String("mode", detect.ModeAnnotate.String(), "detector output mode (annotate, copy or derive)")
		scoreThreshold = flagSet.Float32("score-threshold", detect.DefaultPostprocess.ScoreThreshold, "minimum detection score")
		iouThreshold   = flagSet.Float32("iou-threshold", detect.DefaultPostprocess.IoUThreshold, "non-max suppression overlap")
		maxDetections  = flagSet.Int("max-detections", detect.DefaultPostprocess.MaxDetections, "detections kept per frame, 0 for all")
		labelsPath     = flagSet.String("labels", "", "label file, one class per line")
		width          = flagSet.Int("width", 300, "frame width handed to the detector")
		height         = flagSet.Int("height", 300, "frame height handed to the detector")
		format         = flagSet.String("format", pipeline.DefaultFormat, "raw frame format handed to the detector")
		probeInput     = flagSet.Bool("probe", false, "use the input's own video size instead of width and height")
		cacheSize      = flagSet.Int64("cache-size", 0, "identical frames whose detections are cached, 0 disables")
		stageTimeout   = flagSet.Duration("stage-timeout", element.DefaultStageTimeout, "time allowed to load the model")
		rtspAddress    = flagSet.String("rtsp-address", "", "serve an RTSP relay whose published packets pass through the element")
		metricsAddress = flagSet.String("metrics-address", ":9090", "address serving /metrics and /healthz, empty disables")
	)

	flagSet.VisitAll(func(f *flag.Flag) {
		if flag.Lookup(f.Name) == nil {
			flag.CommandLine.AddFlag(f)
		}
	})

	// Set flags from environment
	for _, v := range os.Environ() {
		vals := strings.SplitN(v, "=", 2)
		flagName := flagNameFromEnvironmentName(vals[0])
		fn := flag.CommandLine.Lookup(flagName)
		if fn == nil || fn.Changed {
			continue
		}
		if err := fn.Value.Set(vals[1]); err != nil {
			fmt.Println(err)
		}
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *help {
		flag.Usage()
		return
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gst.Init(nil)
	if *gstLog {
		gst.SetLogFunction(pipeline.GSTLogFunction)
	}

	detectMode, err := detect.ParseMode(*mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}
	var labels detect.Labels
	if *labelsPath != "" {
		if labels, err = detect.LoadLabels(*labelsPath); err != nil {
			log.Fatal().Err(err).Msg("Unable to load labels")
		}
	}
	if *probeInput && *input != "" {
		info, err := probe.Video(ctx, *input)
		if err != nil {
			log.Fatal().Err(err).Msg("Unable to probe input")
		}
		*width, *height = info.Width, info.Height
	}

	registry := element.NewRegistry()
	opts := plugin.Options{
		Observer:     metrics.Observer{},
		StageTimeout: *stageTimeout,
		Detector: detect.Params{
			// inference backends plug in through detect.Loader
			Loader:    detect.NopLoader,
			Mode:      detectMode,
			Width:     *width,
			Height:    *height,
			Format:    *format,
			Labels:    labels,
			CacheSize: *cacheSize,
			Postprocess: detect.PostprocessParams{
				ScoreThreshold: *scoreThreshold,
				IoUThreshold:   *iouThreshold,
				MaxDetections:  *maxDetections,
			},
		},
	}
	if *rtspAddress != "" {
		opts = opts.ForPackets()
	}
	if err = plugin.Register(registry, opts); err != nil {
		log.Fatal().Err(err).Msg("Unable to register plugin")
	}
	log.Info().Str("version", version.String()).Msg("Starting")
	for _, f := range registry.Factories() {
		log.Debug().Str("factory", f.Name).Str("class", f.Class.TypeName).Msg("Element factory available")
	}

	var httpServer *http.Server
	if *metricsAddress != "" {
		httpServer = newHTTPServer(*metricsAddress)
		go func() {
			log.Info().Str("address", *metricsAddress).Msg("Serving metrics")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if *rtspAddress != "" {
		err = runRTSP(ctx, registry, *factory, *rtspAddress)
	} else {
		source := pipeline.SourcePipelineParams{
			URI:        *input,
			NumBuffers: *numBuffers,
			Format:     *format,
			Width:      *width,
			Height:     *height,
		}
		streamCaps := source.Caps()
		if *factory == plugin.DetectorFactory && detectMode == detect.ModeDerive {
			streamCaps = "application/json"
		}
		err = runPipeline(ctx, registry, *factory, pipeline.DetectionPipelineParams{
			Source: source,
			Stream: pipeline.StreamPipelineParams{
				Caps:        streamCaps,
				SinkFactory: *output,
			},
		})
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err = multierr.Append(err, httpServer.Shutdown(shutdownCtx))
	}
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("ssdtf stopped with errors")
	}
}

func newHTTPServer(address string) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:        address,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}
}

func runPipeline(ctx context.Context, registry *element.Registry, factory string, params pipeline.DetectionPipelineParams) error {
	e, err := registry.Make(factory, "")
	if err != nil {
		return err
	}
	watchBus(e.Bus())
	params.Element = e
	params.OnBuffer = func(buf *element.Buffer) {
		if dets, ok := detect.DetectionsOf(buf); ok && len(dets) > 0 {
			log.Debug().
				Stringer("buffer", buf).
				Int("detections", len(dets)).
				Str("best", dets[0].Label).
				Float32("score", dets[0].Score).
				Msg("Objects detected")
		}
	}

	dp, err := pipeline.NewDetectionPipeline(params)
	if err != nil {
		return err
	}
	if err = dp.Start(ctx); err != nil {
		return err
	}
	err = dp.Run()
	in, out := dp.Counts()
	log.Info().Uint64("in", in).Uint64("out", out).Msg("Pipeline finished")
	return multierr.Append(err, dp.Stop())
}

func runRTSP(ctx context.Context, registry *element.Registry, factory string, address string) error {
	server := rtsp.NewServerHandler(rtsp.ServerHandlerParams{
		RTSPAddress: address,
		NewElement: func() (*element.Element, error) {
			e, err := registry.Make(factory, "")
			if err != nil {
				return nil, err
			}
			watchBus(e.Bus())
			return e, nil
		},
	})
	if err := server.Start(); err != nil {
		return err
	}
	log.Info().Str("address", address).Str("element", factory).Msg("Serving RTSP")
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	if err := server.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func watchBus(bus *element.Bus) {
	bus.AddWatch(func(msg *element.Message) bool {
		switch msg.Type {
		case element.MessageError:
			log.Error().Err(msg.Err).Str("source", msg.Source).Msg("Element error")
		case element.MessageWarning:
			log.Warn().Err(msg.Err).Str("source", msg.Source).Msg("Element warning")
		case element.MessageStateChanged:
			log.Debug().Str("source", msg.Source).Stringer("transition", msg.Transition).Msg("Element state changed")
		}
		return true
	})
}
