package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rtu-receiver/internal/config"
	"rtu-receiver/internal/logging"
	"rtu-receiver/internal/sim"
	"rtu-receiver/internal/udp"
)

type sender interface {
	Send(payload []byte) error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("rtu-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dest := fs.String("dest", "127.0.0.1:5000", "Receiver UDP address")
	imei := fs.String("imei", "863703030668235", "Device IMEI (digits)")
	keyHex := fs.String("key", "", "32 hex character XTEA key")
	seed := fs.Int64("seed", 1, "Payload generator seed")
	items := fs.Int("items", 4, "Telemetry items per datagram")
	interval := fs.Duration("interval", time.Second, "Time between datagrams")
	count := fs.Uint64("count", 0, "Datagrams to send; 0 runs until interrupted")
	logLevel := fs.String("log-level", "info", "trace|debug|info|warn|error|disabled")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	log := logging.New(stderr, "rtu-sim", level, logging.FormatConsole)

	key, err := config.ParseHexKey(*keyHex, "key")
	if err != nil {
		log.Error().Err(err).Msg("invalid flags")
		return 2
	}
	if *interval <= 0 {
		log.Error().Msg("interval must be > 0")
		return 2
	}

	dev := sim.Device{IMEI: *imei, Key: key, Seed: *seed, TelemetryItems: *items}
	if _, err := dev.Frame(0, time.Now()); err != nil {
		log.Error().Err(err).Msg("invalid device")
		return 2
	}

	s, err := udp.NewSender(*dest)
	if err != nil {
		log.Error().Err(err).Msg("udp sender init failed")
		return 1
	}
	defer s.Close()

	log.Info().Str("dest", s.Dest()).Str("imei", dev.IMEI).Dur("interval", *interval).Msg("rtu-sim starting")
	if err := simulate(ctx, dev, s, *interval, *count, log); err != nil {
		log.Error().Err(err).Msg("rtu-sim stopped")
		return 1
	}
	return 0
}

// simulate sends one frame per interval, starting immediately.
func simulate(ctx context.Context, dev sim.Device, out sender, interval time.Duration, count uint64, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := uint64(0); count == 0 || tick < count; tick++ {
		if tick > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		frame, err := dev.Frame(tick, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := out.Send(frame); err != nil {
			return fmt.Errorf("send tick %d: %w", tick, err)
		}
		log.Debug().Uint64("tick", tick).Int("len", len(frame)).Msg("sent")
	}
	return nil
}
