package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/capture"
	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRadio is a scriptable ports.RadioController, grounded on the
// teacher repo's driver-mocking test style (internal/radio's own
// fakeExecutor/stubRadio, one level up the stack).
type fakeRadio struct {
	mu           sync.Mutex
	probeErr     error
	toMonitorErr error
	freqs        []int
	widths       []string
	restoreCalls []ports.MonitorHandle
	restoreErr   error
}

func (r *fakeRadio) Probe(dev string) (ports.DeviceInfo, error) {
	if r.probeErr != nil {
		return ports.DeviceInfo{}, r.probeErr
	}
	return ports.DeviceInfo{Name: dev, OriginalMode: "managed", Frequencies: r.freqs}, nil
}

func (r *fakeRadio) ToMonitor(dev string) (ports.MonitorHandle, error) {
	if r.toMonitorErr != nil {
		return ports.MonitorHandle{}, r.toMonitorErr
	}
	return ports.MonitorHandle{Name: "cap8", PhysDevice: "phy0"}, nil
}

func (r *fakeRadio) Freqs(ports.MonitorHandle) ([]int, error) { return r.freqs, nil }
func (r *fakeRadio) Widths() []string                         { return r.widths }

func (r *fakeRadio) TryTune(ports.MonitorHandle, int, string) error { return nil }

func (r *fakeRadio) Restore(h ports.MonitorHandle, originalName, originalMode string) error {
	r.mu.Lock()
	r.restoreCalls = append(r.restoreCalls, h)
	r.mu.Unlock()
	return r.restoreErr
}

// noopDecoder never matches any frame; the loop tests below exercise
// command-pipe plumbing, not classification.
type noopDecoder struct{}

func (noopDecoder) ParseRadiotap([]byte) (ports.RadiotapInfo, error) {
	return ports.RadiotapInfo{}, errors.New("no frames expected in this test")
}
func (noopDecoder) ParseMPDU([]byte, bool) (ports.MPDU, error) {
	return ports.MPDU{}, errors.New("no frames expected in this test")
}

// scriptedCommands feeds a fixed sequence of commands, then blocks until
// ctx is canceled.
type scriptedCommands struct {
	mu   sync.Mutex
	cmds []domain.Command
}

func (c *scriptedCommands) Recv(ctx context.Context) (domain.Command, error) {
	c.mu.Lock()
	if len(c.cmds) > 0 {
		cmd := c.cmds[0]
		c.cmds = c.cmds[1:]
		c.mu.Unlock()
		return cmd, nil
	}
	c.mu.Unlock()

	<-ctx.Done()
	return 0, ctx.Err()
}

type collectingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *collectingSink) Send(e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *collectingSink) snapshot() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

type fakeSniffer struct {
	closed chan struct{}
	once   sync.Once
}

func newFakeSniffer() *fakeSniffer { return &fakeSniffer{closed: make(chan struct{})} }

func (f *fakeSniffer) Run() error {
	<-f.closed
	return nil
}

func (f *fakeSniffer) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func baseConfig() domain.Config {
	return domain.Config{TargetSSID: "coffee", Interface: "wlan0", Mode: domain.ModeAuto}
}

func TestSupervisor_RefusesWithoutPrivilege(t *testing.T) {
	rc := &fakeRadio{freqs: []int{2412}, widths: []string{"20"}}
	sink := &collectingSink{}
	sup := New(baseConfig(), rc, noopDecoder{}, nil, &scriptedCommands{}, sink, nil)
	sup.geteuid = func() int { return 1000 }

	err := sup.Run(context.Background())
	require.Error(t, err)

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrKindNonPriv, events[0].ErrKind)
	assert.NotEmpty(t, events[0].SessionID)
}

func TestSupervisor_SetupFailureEmitsErrAndStaysOut(t *testing.T) {
	rc := &fakeRadio{probeErr: errors.New("no such device")}
	sink := &collectingSink{}
	sup := New(baseConfig(), rc, noopDecoder{}, nil, &scriptedCommands{}, sink, nil)
	sup.geteuid = func() int { return 0 }

	err := sup.Run(context.Background())
	require.Error(t, err)

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrKindSetup, events[0].ErrKind)
}

func TestSupervisor_QuitDrivesCleanTeardownAndRestore(t *testing.T) {
	rc := &fakeRadio{freqs: []int{2412, 2417}, widths: []string{"20"}}
	sink := &collectingSink{}
	cmds := &scriptedCommands{cmds: []domain.Command{domain.CmdQuit}}

	var sniff *fakeSniffer
	factory := func(iface string, q *capture.FrameQueue) (Sniffer, error) {
		sniff = newFakeSniffer()
		return sniff, nil
	}

	sup := New(baseConfig(), rc, noopDecoder{}, nil, cmds, sink, factory)
	sup.geteuid = func() int { return 0 }

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not exit after QUIT")
	}

	require.Len(t, rc.restoreCalls, 1)
	assert.Equal(t, "cap8", rc.restoreCalls[0].Name)

	for _, ev := range sink.snapshot() {
		assert.NotEqual(t, domain.ErrKindRestore, ev.ErrKind, "clean teardown must not report a restore error")
	}
}

func TestSupervisor_CommandPipeClosedActsLikeQuit(t *testing.T) {
	rc := &fakeRadio{freqs: []int{2412}, widths: []string{"20"}}
	sink := &collectingSink{}
	cmds := &erroringCommands{err: errors.New("pipe closed")}

	factory := func(iface string, q *capture.FrameQueue) (Sniffer, error) {
		return newFakeSniffer(), nil
	}

	sup := New(baseConfig(), rc, noopDecoder{}, nil, cmds, sink, factory)
	sup.geteuid = func() int { return 0 }

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not exit after command pipe closed")
	}
}

type erroringCommands struct{ err error }

func (c *erroringCommands) Recv(ctx context.Context) (domain.Command, error) {
	return 0, c.err
}
