// Package supervisor implements the Collector Supervisor: the
// subordinate-process lifecycle that owns the Radio Controller, Tuner,
// Sniffer, and Classifier for one collection run, tearing every worker
// down on any exit path.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/capwatch/internal/capture"
	"github.com/lcalzada-xor/capwatch/internal/classifier"
	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/lcalzada-xor/capwatch/internal/radio"
	"github.com/lcalzada-xor/capwatch/internal/telemetry"
	"github.com/lcalzada-xor/capwatch/internal/tuner"
)

// JoinDeadline is the per-worker teardown join timeout.
const JoinDeadline = 5 * time.Second

// FrameQueueCapacity bounds the Sniffer->Classifier queue. 0 would mean
// unbounded, which is otherwise allowed, but a bounded queue gives
// frame drops under load an observable trigger instead of silent
// memory growth.
const FrameQueueCapacity = 4096

// SnifferFactory opens the raw-socket Sniffer. Indirected so tests can
// substitute a fake without opening a real AF_PACKET socket (which
// requires root).
type SnifferFactory func(iface string, queue *capture.FrameQueue) (Sniffer, error)

// Sniffer is the subset of capture.Sniffer the Supervisor depends on.
type Sniffer interface {
	Run() error
	Close() error
}

// Supervisor drives one collection run end to end.
type Supervisor struct {
	cfg     domain.Config
	rc      ports.RadioController
	decoder ports.FrameDecoder
	clock   ports.Clock
	cmds    ports.CommandSource
	events  ports.EventSink
	newSniffer SnifferFactory

	geteuid func() int

	sessionID string // stamped onto every emitted event for this run
}

// taggedSink stamps sessionID onto every event before forwarding it, so
// both the Supervisor's own ERR events and the Classifier's AP/STA
// events carry the same run identifier.
type taggedSink struct {
	sessionID string
	next      ports.EventSink
}

func (t taggedSink) Send(ev domain.Event) error {
	ev.SessionID = t.sessionID
	if t.next == nil {
		return nil
	}
	return t.next.Send(ev)
}

// New creates a Supervisor for one run. newSniffer may be nil, in which
// case the production AF_PACKET sniffer is used.
func New(cfg domain.Config, rc ports.RadioController, decoder ports.FrameDecoder, clock ports.Clock, cmds ports.CommandSource, events ports.EventSink, newSniffer SnifferFactory) *Supervisor {
	if clock == nil {
		clock = ports.SystemClock
	}
	if newSniffer == nil {
		newSniffer = func(iface string, q *capture.FrameQueue) (Sniffer, error) {
			return capture.NewSniffer(iface, q)
		}
	}
	return &Supervisor{
		cfg:        cfg,
		rc:         rc,
		decoder:    decoder,
		clock:      clock,
		cmds:       cmds,
		events:     events,
		newSniffer: newSniffer,
		geteuid:    syscall.Geteuid,
	}
}

// Run executes Setup, the Run loop, and Teardown in sequence. It returns
// nil after a clean QUIT-triggered exit and a non-nil error only for a
// fatal setup failure, so the Presenter can stay in configured rather
// than advancing on a failed Run.
func (s *Supervisor) Run(ctx context.Context) error {
	s.sessionID = uuid.NewString()

	if s.geteuid() != 0 {
		s.emit(domain.NewErrEvent(domain.ErrKindNonPriv, "insufficient privilege to enter monitor mode"))
		return errors.New("supervisor: not privileged")
	}

	res, err := s.setup(ctx)
	if err != nil {
		s.emit(domain.NewErrEvent(domain.ErrKindSetup, err.Error()))
		if res.handle.Name != "" {
			s.restore(ctx, res)
		}
		return fmt.Errorf("supervisor: setup: %w", err)
	}

	s.loop(ctx, res)
	s.teardown(ctx, res)
	return nil
}

type setupResult struct {
	info    ports.DeviceInfo
	handle  ports.MonitorHandle
	scan    []domain.ScanEntry
	queue   *capture.FrameQueue
	sniff   Sniffer
	classif *classifier.Classifier
	tu      *tuner.Tuner

	tunerDone   chan struct{}
	snifferDone chan struct{}
	snifferErr  error
}

func (s *Supervisor) setup(ctx context.Context) (setupResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "supervisor.setup")
	defer span.End()

	var res setupResult

	info, err := s.rc.Probe(s.cfg.Interface)
	if err != nil {
		return res, fmt.Errorf("probe %s: %w", s.cfg.Interface, err)
	}
	res.info = info

	handle, err := s.rc.ToMonitor(s.cfg.Interface)
	if err != nil {
		return res, fmt.Errorf("enter monitor mode on %s: %w", s.cfg.Interface, err)
	}
	res.handle = handle

	scan, err := radio.BuildScanList(s.rc, handle)
	if err != nil {
		return res, fmt.Errorf("build scan list: %w", err)
	}
	res.scan = scan // always non-empty: enforced by BuildScanList

	res.queue = capture.NewFrameQueue(FrameQueueCapacity)
	res.queue.OnDrop = func(n int) {
		telemetry.FramesDropped.WithLabelValues(handle.Name).Inc()
		s.emit(domain.NewFrameDropEvent(n))
	}

	sniff, err := s.newSniffer(handle.Name, res.queue)
	if err != nil {
		return res, fmt.Errorf("open capture socket on %s: %w", handle.Name, err)
	}
	res.sniff = sniff

	res.classif = classifier.New(s.cfg.TargetSSID, s.decoder, s.clock, s.sink())

	res.tu = tuner.New(s.rc, handle, scan, func(err error) {
		log.Printf("supervisor: tuner fatal: %v", err)
	})

	res.tunerDone = make(chan struct{})
	go func() {
		defer close(res.tunerDone)
		res.tu.Run()
	}()

	res.snifferDone = make(chan struct{})
	go func() {
		defer close(res.snifferDone)
		res.snifferErr = res.sniff.Run()
	}()

	return res, nil
}

// loop is the Classifier loop: it owns the command pipe and the frame
// queue, and is the only goroutine that mutates the network model.
func (s *Supervisor) loop(ctx context.Context, res setupResult) {
	ctx, span := telemetry.Tracer.Start(ctx, "supervisor.loop")
	defer span.End()

	cmdCh := make(chan domain.Command, 1)
	cmdErrCh := make(chan error, 1)
	go func() {
		for {
			cmd, err := s.cmds.Recv(ctx)
			if err != nil {
				cmdErrCh <- err
				return
			}
			cmdCh <- cmd
			if cmd == domain.CmdQuit {
				return
			}
		}
	}()

	for {
		popCtx, cancel := context.WithTimeout(ctx, time.Second)
		frame, ok := res.queue.Pop(popCtx)
		cancel()
		if ok {
			res.classif.Handle(frame)
		}

		select {
		case cmd := <-cmdCh:
			if cmd == domain.CmdQuit {
				return
			}
			// PAUSE/RESUME are reserved for future use and not yet defined.
		case <-cmdErrCh:
			return // command pipe closed or a command failed to decode: treat like an implicit quit
		case <-ctx.Done():
			return
		default:
		}
	}
}

// teardown closes the capture socket and signals the Tuner to stop,
// removes the monitor interface, restores the original interface/mode,
// and then joins both workers with a 5-second deadline each. Every step
// is attempted even if an earlier one fails.
func (s *Supervisor) teardown(ctx context.Context, res setupResult) {
	ctx, span := telemetry.Tracer.Start(ctx, "supervisor.teardown")
	defer span.End()

	if err := res.sniff.Close(); err != nil {
		log.Printf("supervisor: closing capture socket: %v", err)
	}
	// Stop blocks until the Tuner exits, so it runs on its own goroutine
	// and the join below is what bounds the wait.
	go res.tu.Stop()

	s.restore(ctx, res)

	s.joinWithDeadline("sniffer", res.snifferDone)
	s.joinWithDeadline("tuner", res.tunerDone)

	if res.snifferErr != nil {
		log.Printf("supervisor: sniffer exited with: %v", res.snifferErr)
	}

	aps := res.classif.Snapshot()
	stas := res.classif.Stations()
	log.Printf("supervisor: session complete: %d access points, %d stations", len(aps), len(stas))
	for mac, sta := range stas {
		log.Printf("supervisor: station %s last seen on bssid %s channel %d", mac, sta.BSSID, sta.Channel)
	}
}

func (s *Supervisor) restore(ctx context.Context, res setupResult) {
	if res.handle.Name == "" {
		return
	}
	_, span := telemetry.Tracer.Start(ctx, "supervisor.restore")
	defer span.End()

	if err := s.rc.Restore(res.handle, res.info.Name, res.info.OriginalMode); err != nil {
		s.emit(domain.NewErrEvent(domain.ErrKindRestore, err.Error()))
	}
}

func (s *Supervisor) joinWithDeadline(worker string, done chan struct{}) {
	select {
	case <-done:
	case <-time.After(JoinDeadline):
		log.Printf("supervisor: %s exceeded join deadline", worker)
		s.emit(domain.NewErrEvent(domain.ErrKindWorkerHang, worker))
	}
}

func (s *Supervisor) emit(ev domain.Event) {
	if err := s.sink().Send(ev); err != nil {
		log.Printf("supervisor: event send failed: %v", err)
	}
}

// sink returns the session-tagged EventSink every emitter (the
// Supervisor itself and the Classifier it constructs) must publish
// through.
func (s *Supervisor) sink() ports.EventSink {
	return taggedSink{sessionID: s.sessionID, next: s.events}
}
