// Package tuner implements the Tuner worker: a single background task
// that cycles the Radio Controller through the scan list on a fixed
// cadence, never blocking on anything but its timer. A plain channel-int
// round robin generalized to a (frequency, width) ScanEntry list.
package tuner

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/lcalzada-xor/capwatch/internal/telemetry"
)

// ScanPeriod is the fixed dwell time between tunes.
const ScanPeriod = 200 * time.Millisecond

// Tuner cycles a RadioController through a scan list at ScanPeriod.
// Tune failures other than an invalid scan entry are treated as the
// adapter having been destroyed out from under it and stop the loop.
type Tuner struct {
	rc     ports.RadioController
	handle ports.MonitorHandle

	mu    sync.RWMutex
	scan  []domain.ScanEntry
	index int

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}

	onFatal func(error)
}

// New creates a Tuner over scan, which must be non-empty.
func New(rc ports.RadioController, h ports.MonitorHandle, scan []domain.ScanEntry, onFatal func(error)) *Tuner {
	return &Tuner{
		rc:       rc,
		handle:   h,
		scan:     append([]domain.ScanEntry(nil), scan...),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		onFatal:  onFatal,
	}
}

// Run executes the tuning loop until Stop is called or a tune call fails
// with anything other than an invalid-argument rejection. It is meant to
// be run on its own goroutine/OS thread; it suspends only on its ticker.
func (t *Tuner) Run() {
	defer close(t.doneChan)

	ticker := time.NewTicker(ScanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			if !t.advance() {
				return
			}
		}
	}
}

// advance performs one (i+1) mod |scan| step and tunes to it. It returns
// false if the tune call failed fatally (adapter gone), in which case the
// loop terminates.
func (t *Tuner) advance() bool {
	t.mu.Lock()
	if len(t.scan) == 0 {
		t.mu.Unlock()
		return true // defensive: nothing to do, but not fatal
	}
	t.index = (t.index + 1) % len(t.scan)
	entry := t.scan[t.index]
	t.mu.Unlock()

	err := t.rc.TryTune(t.handle, entry.FrequencyMHz, entry.Width)
	if err == nil {
		telemetry.TuneAttempts.WithLabelValues("ok").Inc()
		return true
	}
	if errors.Is(err, ports.ErrInvalidArgument) {
		// Defensive: the scan list was pre-filtered by radio.BuildScanList,
		// so this should not happen in steady state. Skip and continue.
		telemetry.TuneAttempts.WithLabelValues("invalid").Inc()
		log.Printf("tuner: entry %s rejected as invalid, skipping", entry)
		return true
	}

	telemetry.TuneAttempts.WithLabelValues("fatal").Inc()
	log.Printf("tuner: fatal tune error on %s: %v", entry, err)
	if t.onFatal != nil {
		t.onFatal(err)
	}
	return false
}

// Stop requests the loop to exit and blocks until it has. The loop
// returns as soon as it next waits on its ticker; it does not wait for
// another tick.
func (t *Tuner) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
	<-t.doneChan
}

// Scan returns a copy of the current scan list.
func (t *Tuner) Scan() []domain.ScanEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.ScanEntry(nil), t.scan...)
}
