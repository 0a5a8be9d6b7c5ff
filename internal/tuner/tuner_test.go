package tuner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/stretchr/testify/assert"
)

// recordingRadio captures every TryTune call so tests can assert on the
// exact hop order without a real adapter.
type recordingRadio struct {
	mu        sync.Mutex
	calls     []domain.ScanEntry
	failAfter int // -1 = never fail
}

func (r *recordingRadio) Probe(string) (ports.DeviceInfo, error)        { return ports.DeviceInfo{}, nil }
func (r *recordingRadio) ToMonitor(string) (ports.MonitorHandle, error) { return ports.MonitorHandle{}, nil }
func (r *recordingRadio) Freqs(ports.MonitorHandle) ([]int, error)      { return nil, nil }
func (r *recordingRadio) Widths() []string                             { return nil }
func (r *recordingRadio) Restore(ports.MonitorHandle, string, string) error { return nil }

func (r *recordingRadio) TryTune(h ports.MonitorHandle, mhz int, width string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, domain.ScanEntry{FrequencyMHz: mhz, Width: width})
	if r.failAfter >= 0 && len(r.calls) > r.failAfter {
		return errors.New("adapter gone")
	}
	return nil
}

func (r *recordingRadio) snapshot() []domain.ScanEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ScanEntry(nil), r.calls...)
}

func TestTuner_CyclesEveryEntry(t *testing.T) {
	scan := []domain.ScanEntry{{FrequencyMHz: 2412, Width: "20"}, {FrequencyMHz: 2417, Width: "20"}, {FrequencyMHz: 2422, Width: "20"}}
	rc := &recordingRadio{failAfter: -1}
	tu := New(rc, ports.MonitorHandle{}, scan, nil)

	go tu.Run()
	time.Sleep(ScanPeriod*4 + 50*time.Millisecond)
	tu.Stop()

	calls := rc.snapshot()
	assert.GreaterOrEqual(t, len(calls), 3)
	for i, c := range calls {
		want := scan[(i+1)%len(scan)]
		assert.Equal(t, want, c, "call %d", i)
	}
}

func TestTuner_FatalErrorStopsLoop(t *testing.T) {
	scan := []domain.ScanEntry{{FrequencyMHz: 2412, Width: "20"}, {FrequencyMHz: 2417, Width: "20"}}
	rc := &recordingRadio{failAfter: 1}

	var fatalErr error
	var mu sync.Mutex
	tu := New(rc, ports.MonitorHandle{}, scan, func(err error) {
		mu.Lock()
		fatalErr = err
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		tu.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tuner did not stop after fatal tune error")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Error(t, fatalErr)
}

func TestTuner_Scan_ReturnsCopy(t *testing.T) {
	scan := []domain.ScanEntry{{FrequencyMHz: 2412, Width: "20"}}
	rc := &recordingRadio{failAfter: -1}
	tu := New(rc, ports.MonitorHandle{}, scan, nil)

	got := tu.Scan()
	got[0].FrequencyMHz = 9999

	assert.Equal(t, 2412, tu.Scan()[0].FrequencyMHz)
}
