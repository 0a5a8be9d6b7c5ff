// Command capwatch-collector is the Collector Supervisor subprocess. It
// is spawned by cmd/capwatch once per collection run, already fully
// configured via flags; it reads lifecycle commands off stdin (acting
// only on QUIT; there are no PAUSE/RESUME commands) and writes Update
// Channel events to stdout, both as
// newline-delimited JSON (internal/ipc) — an isolated capture process
// that talks to its parent only over a pipe.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcalzada-xor/capwatch/internal/classifier"
	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/ipc"
	"github.com/lcalzada-xor/capwatch/internal/radio"
	"github.com/lcalzada-xor/capwatch/internal/supervisor"
	"github.com/lcalzada-xor/capwatch/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var iface, ssid, mode string
	flag.StringVar(&iface, "i", "", "wireless interface to place into monitor mode")
	flag.StringVar(&ssid, "ssid", "", "target network name to track")
	flag.StringVar(&mode, "mode", "auto", "connection mode: auto or manual")
	flag.Parse()

	cfg := domain.Config{TargetSSID: ssid, Interface: iface}
	if mode == "manual" {
		cfg.Mode = domain.ModeManual
	}
	if !cfg.Valid() {
		slog.Error("collector: incomplete configuration", "interface", iface, "ssid", ssid)
		os.Exit(2)
	}

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Warn("collector: tracer init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmds := ipc.NewCommandDecoder(os.Stdin)
	events := ipc.NewEventEncoder(os.Stdout)

	sup := supervisor.New(cfg, radio.New(), classifier.GopacketDecoder{}, nil, cmds, events, nil)

	if err := sup.Run(ctx); err != nil {
		slog.Error("collector: run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("collector: clean exit")
}
