package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/asrstream/pkg/asr"
	"github.com/harunnryd/asrstream/pkg/audio"
	"github.com/harunnryd/asrstream/pkg/config"
	"github.com/harunnryd/asrstream/pkg/errorsx"
	"github.com/harunnryd/asrstream/pkg/logging"
	"github.com/harunnryd/asrstream/pkg/metrics"
	"github.com/harunnryd/asrstream/pkg/protocol"
	"github.com/harunnryd/asrstream/pkg/redact"
	"github.com/harunnryd/asrstream/pkg/runner"
	"github.com/harunnryd/asrstream/pkg/transports/websocket"
)

// Exit codes by failure class.
const (
	exitOK = iota
	exitUsage
	exitConfig
	exitInput
	exitTransport
	exitProtocol
	exitRemote
	exitEmpty
	exitCanceled
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("asrclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML config file")
	wavPath := fs.String("wav", "", "16-bit PCM WAV file to transcribe")
	dumpPath := fs.String("dump", "", "write the PCM that is streamed to this WAV file")
	partials := fs.Bool("partials", false, "print partial transcripts to stderr")
	quiet := fs.Bool("quiet", false, "skip the startup banner")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *wavPath == "" {
		fmt.Fprintln(stderr, "-wav is required")
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitConfig
	}
	if !*quiet {
		runner.PrintBanner(stderr)
	}
	logger := logging.InitLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)
	log := logging.NewComponentLogger(logger, "asrclient")

	pcm, format, err := audio.LoadWAVFile(*wavPath)
	if err != nil {
		log.Error("wav_load_failed", slog.String("path", *wavPath), slog.Any("error", err))
		return exitInput
	}
	if format != cfg.AudioFormat() {
		log.Warn("wav_format_override",
			slog.Int("sample_rate", format.SampleRate),
			slog.Int("bits", format.BitsPerSample),
			slog.Int("channels", format.Channels),
		)
	}
	if *dumpPath != "" {
		if err := audio.WriteWAVFile(*dumpPath, pcm, format); err != nil {
			log.Error("wav_dump_failed", slog.String("path", *dumpPath), slog.Any("error", err))
			return exitInput
		}
	}

	obs, shutdown, err := buildObserver(cfg, logger)
	if err != nil {
		log.Error("metrics_init_failed", slog.Any("error", err))
		return exitConfig
	}
	defer shutdown()

	opts := cfg.ClientOptions()
	opts.Format = format
	opts.Logger = logger
	opts.Observer = obs
	if *partials {
		opts.OnPartial = func(text string) { fmt.Fprintf(stderr, "... %s\n", text) }
	}
	client, err := asr.NewClient(opts)
	if err != nil {
		log.Error("client_init_failed", slog.Any("error", err))
		return exitCode(err)
	}
	wc, err := cfg.WebsocketConfig()
	if err != nil {
		log.Error("transport_config_failed", slog.Any("error", err))
		return exitConfig
	}

	ctx, stop := runner.SignalContext(context.Background())
	defer stop()
	if timeout := cfg.SessionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := client.Transcribe(ctx, websocket.NewDialer(wc), pcm)
	if err != nil {
		var remote *protocol.RemoteError
		if errors.As(err, &remote) {
			fmt.Fprintf(stderr, "remote error %d: %s\n", remote.Code, remote.Message)
		} else {
			fmt.Fprintf(stderr, "transcribe: %v\n", err)
		}
		return exitCode(err)
	}
	fmt.Fprintln(stdout, text)
	return exitOK
}

func exitCode(err error) int {
	switch errorsx.Reason(err) {
	case errorsx.ReasonConfig:
		return exitConfig
	case errorsx.ReasonInput:
		return exitInput
	case errorsx.ReasonTransport:
		return exitTransport
	case errorsx.ReasonProtocol:
		return exitProtocol
	case errorsx.ReasonRemote:
		return exitRemote
	case errorsx.ReasonEmptyResult:
		return exitEmpty
	case errorsx.ReasonCanceled:
		return exitCanceled
	default:
		return exitTransport
	}
}

// buildObserver wires the configured metrics sinks behind one async observer.
func buildObserver(cfg config.Config, logger *slog.Logger) (metrics.Observer, func(), error) {
	mlog := logging.NewComponentLogger(logger, "metrics")
	sinks := []metrics.Observer{metrics.NewLoggerObserver(mlog), metrics.NewLatencyObserver(mlog)}
	var closers []func()

	if cfg.Metrics.JSONLPath != "" {
		f, err := os.OpenFile(cfg.Metrics.JSONLPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open metrics file: %w", err)
		}
		sinks = append(sinks, metrics.NewJSONLObserver(f))
		closers = append(closers, func() { _ = f.Close() })
	}

	if cfg.Metrics.ListenAddr != "" {
		reg := prometheus.NewRegistry()
		prom, err := metrics.NewPrometheusObserver(reg)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, prom)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics_server_failed", slog.Any("error", err))
			}
		}()
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	async := metrics.NewAsyncObserver(metrics.NewMultiObserver(sinks...), cfg.Metrics.AsyncBuffer)
	shutdown := func() {
		async.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return async, shutdown, nil
}
