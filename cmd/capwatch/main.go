// Command capwatch is the reference Presenter: it drives the Collector
// Supervisor lifecycle over a spawned capwatch-collector subprocess,
// applies the Update Channel to a local AP/station view, serves that
// view as a live dashboard, and on clean shutdown writes an audit log
// row and a PDF session report.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/audit"
	"github.com/lcalzada-xor/capwatch/internal/config"
	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/ipc"
	"github.com/lcalzada-xor/capwatch/internal/presenter/ws"
	"github.com/lcalzada-xor/capwatch/internal/reporting"
	"github.com/lcalzada-xor/capwatch/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// model is the Presenter's own read of the Network Model, rebuilt purely
// from the Update Channel. The Network Model itself is owned exclusively
// by the Classifier; the Presenter only ever sees events.
type model struct {
	aps  map[string]domain.AccessPoint
	stas map[string]domain.Station
}

func newModel() *model {
	return &model{aps: make(map[string]domain.AccessPoint), stas: make(map[string]domain.Station)}
}

func (m *model) apply(ev domain.Event) {
	switch ev.Kind {
	case domain.EventAPNew, domain.EventAPUpd:
		ap := m.aps[ev.BSSID]
		ap.BSSID = ev.BSSID
		ap.RSSI = ev.RSSI
		m.aps[ev.BSSID] = ap
	case domain.EventSTANew, domain.EventSTAUpd:
		m.stas[ev.Station] = domain.Station{
			MAC:      ev.Station,
			BSSID:    ev.StaInfo.BSSID,
			LastSeen: ev.StaInfo.Ts,
			Channel:  ev.StaInfo.Channel,
			RSSI:     ev.StaInfo.RSSI,
		}
		if ap, ok := m.aps[ev.StaInfo.BSSID]; ok {
			ch := ev.StaInfo.Channel
			ap.Channel = &ch
			m.aps[ev.StaInfo.BSSID] = ap
		}
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	if cfg.Debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	machine := domain.NewMachine()
	if err := machine.ConfigureOK(cfg.Config); err != nil {
		slog.Error("presenter: configure rejected", "error", err)
		os.Exit(2)
	}

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Warn("presenter: tracer init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	store, err := audit.Open(cfg.DBPath)
	if err != nil {
		slog.Error("presenter: audit log unavailable", "error", err)
		os.Exit(2)
	}
	defer store.Close()

	if recent, err := store.Recent(ctx, 5); err != nil {
		slog.Warn("presenter: could not read recent sessions", "error", err)
	} else {
		for _, rec := range recent {
			slog.Info("presenter: prior session", "ssid", rec.TargetSSID, "started_at", rec.StartedAt, "aps", rec.APCount, "stations", rec.StationCount)
		}
	}

	dashboard := ws.NewDashboard()
	httpSrv := startDashboard(cfg.Addr, dashboard)
	defer httpSrv.Shutdown(context.Background())

	startedAt := time.Now()
	sessionID, err := store.Begin(ctx, cfg.TargetSSID, cfg.Interface, startedAt)
	if err != nil {
		slog.Warn("presenter: could not record session start", "error", err)
	}

	net := newModel()
	setupErr, restoreErr := runSession(ctx, cfg, machine, dashboard, net)

	if err := store.End(ctx, sessionID, time.Now(), len(net.aps), len(net.stas), setupErr, restoreErr); err != nil {
		slog.Warn("presenter: could not record session end", "error", err)
	}

	if err := writeReport(cfg, net, startedAt); err != nil {
		slog.Warn("presenter: could not write session report", "error", err)
	}
}

// runSession spawns the collector, applies its event stream to net until
// it exits, and drives the lifecycle machine accordingly. It returns the
// setup and restore errors observed over the Update Channel, if any, for
// the audit record.
func runSession(ctx context.Context, cfg *config.Config, machine *domain.Machine, dashboard *ws.Dashboard, net *model) (setupErr, restoreErr error) {
	cmd := exec.CommandContext(ctx, cfg.CollectorBin,
		"-i", cfg.Interface,
		"-ssid", cfg.TargetSSID,
		"-mode", cfg.Mode.String(),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		slog.Error("presenter: collector stdin pipe", "error", err)
		return err, nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("presenter: collector stdout pipe", "error", err)
		return err, nil
	}

	if err := cmd.Start(); err != nil {
		slog.Error("presenter: collector start", "error", err)
		return err, nil
	}

	cmds := ipc.NewCommandEncoder(stdin)
	events := ipc.NewEventDecoder(stdout)

	if err := machine.RunOK(); err != nil {
		slog.Error("presenter: lifecycle rejected run", "error", err)
	}

	quit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-quit:
			return
		}
		if err := cmds.Send(domain.CmdQuit, domain.Config{}); err != nil {
			slog.Warn("presenter: could not send quit", "error", err)
		}
	}()

	for {
		ev, err := events.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn("presenter: event decode failed", "error", err)
			continue
		}

		net.apply(ev)
		if err := dashboard.Send(ev); err != nil {
			slog.Warn("presenter: dashboard send failed", "error", err)
		}

		if ev.Kind == domain.EventErr {
			switch ev.ErrKind {
			case domain.ErrKindSetup:
				setupErr = errors.New(ev.Message)
			case domain.ErrKindRestore:
				restoreErr = errors.New(ev.Message)
			}
			slog.Warn("presenter: collector error", "kind", ev.ErrKind, "message", ev.Message, "count", ev.Count)
		}
	}
	close(quit)

	if err := cmd.Wait(); err != nil {
		slog.Warn("presenter: collector exited with error", "error", err)
	}

	if setupErr == nil {
		if err := machine.StopOK(); err != nil {
			slog.Warn("presenter: lifecycle rejected stop", "error", err)
		}
	}
	if err := machine.QuitOK(); err != nil {
		slog.Warn("presenter: lifecycle rejected quit", "error", err)
	}

	return setupErr, restoreErr
}

func writeReport(cfg *config.Config, net *model, startedAt time.Time) error {
	exporter := reporting.NewExporter()
	data, err := exporter.Export(reporting.Session{
		TargetSSID:   cfg.TargetSSID,
		Interface:    cfg.Interface,
		StartedAt:    startedAt,
		EndedAt:      time.Now(),
		AccessPoints: net.aps,
		Stations:     net.stas,
	})
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.ReportDir, "capwatch-"+startedAt.Format("20060102-150405")+".pdf")
	return os.WriteFile(path, data, 0644)
}

func startDashboard(addr string, dashboard *ws.Dashboard) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", dashboard.Router())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("presenter: dashboard server stopped", "error", err)
		}
	}()
	return srv
}
