package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rtu-receiver/internal/config"
	"rtu-receiver/internal/jsonl"
	"rtu-receiver/internal/logging"
	"rtu-receiver/internal/receiver"
	"rtu-receiver/internal/replay"
	"rtu-receiver/internal/web"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

var onceTimeout = 5 * time.Second

type options struct {
	once        bool
	replayPath  string
	replaySpeed float64
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rtu-receiver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./receiver.yaml", "Path to config (.yaml, .toml or .json)")
	once := fs.Bool("once", false, "Handle a single datagram and exit (5s timeout)")
	logLevel := fs.String("log-level", "info", "trace|debug|info|warn|error|disabled")
	logFormat := fs.String("log-format", "console", "console|json")
	replayPath := fs.String("replay", "", "Re-decode a raw-*.jsonl capture instead of listening")
	replaySpeed := fs.Float64("replay-speed", 0, "Replay pacing multiplier; 0 replays without waiting")
	summarize := fs.String("summarize", "", "Print a summary of a decoded/errors/raw jsonl file and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	if *summarize != "" {
		if err := printLogSummary(stdout, *summarize); err != nil {
			fmt.Fprintf(stderr, "summarize failed: %v\n", err)
			return exitRuntime
		}
		return exitOK
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	format, err := logging.ParseFormat(*logFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if *replaySpeed < 0 {
		fmt.Fprintln(stderr, "replay-speed must be >= 0")
		return exitUsage
	}
	log := logging.New(stderr, "rtu-receiver", level, format)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Str("path", *configPath).Msg("config load failed")
		return exitUsage
	}

	opts := options{once: *once, replayPath: *replayPath, replaySpeed: *replaySpeed}
	if err := runReceiver(ctx, cfg, opts, log); err != nil {
		log.Error().Err(err).Msg("receiver stopped")
		return exitRuntime
	}
	return exitOK
}

func runReceiver(ctx context.Context, cfg config.Config, opts options, log zerolog.Logger) error {
	writer, err := jsonl.NewWriter(cfg.LogDir)
	if err != nil {
		return err
	}
	defer writer.Close()

	status := receiver.NewStatus()
	recent := web.NewRecentErrors(500)
	handler := receiver.NewHandler(jsonl.Tee(writer, recent), cfg.Keys, cfg.DecodeEnabled, status, log)

	log.Info().Str("log_dir", cfg.LogDir).Bool("decode_enabled", cfg.DecodeEnabled).
		Strs("keyed_imeis", cfg.Keys.IMEIs()).Bool("default_key", cfg.Keys.Default != nil).Msg("rtu-receiver starting")

	if opts.replayPath != "" {
		return replayCapture(ctx, handler, opts, log)
	}

	if cfg.StatusListen != "" {
		ln, err := net.Listen("tcp", cfg.StatusListen)
		if err != nil {
			return fmt.Errorf("status listen: %w", err)
		}
		log.Info().Str("status_listen", ln.Addr().String()).Msg("status api enabled")
		go func() {
			if err := web.Serve(ctx, ln, status, recent); err != nil {
				log.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	conn, err := receiver.Listen(ctx, cfg.ListenAddr(), cfg.ReadBufferBytes)
	if err != nil {
		return err
	}
	srv := &receiver.Server{
		Handler:    handler,
		Status:     status,
		Log:        log,
		MaxPending: cfg.MaxPendingDatagrams,
		Workers:    cfg.Workers,
	}

	if opts.once {
		log.Info().Str("listen", conn.LocalAddr().String()).Dur("timeout", onceTimeout).Msg("waiting for one datagram")
		err := srv.ServeOnce(ctx, conn, onceTimeout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	err = srv.Serve(ctx, conn)
	snap := status.Snapshot(time.Time{})
	log.Info().Uint64("received", snap.Received).Uint64("decoded", snap.Decoded).
		Uint64("fatal", snap.Fatal).Uint64("dropped", snap.Dropped).Msg("rtu-receiver stopping")
	return err
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

func replayCapture(ctx context.Context, handler *receiver.Handler, opts options, log zerolog.Logger) error {
	records, err := replay.ReadFile(opts.replayPath)
	if err != nil {
		return fmt.Errorf("read replay: %w", err)
	}
	if len(records) == 0 {
		log.Warn().Str("path", opts.replayPath).Msg("replay capture is empty, nothing to decode")
		return nil
	}
	speed := opts.replaySpeed
	var sleeper replay.Sleeper
	if speed == 0 {
		speed = 1
		sleeper = noSleep{}
	}

	log.Info().Str("path", opts.replayPath).Int("records", len(records)).Msg("replaying capture")
	err = replay.Play(ctx, records, speed, sleeper, func(r replay.Record) error {
		return handler.Handle(receiver.Datagram{Data: r.Datagram, Source: r.Source, ReceivedAt: r.At})
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
