// Package ports declares the collaborator contracts the core depends on
// but does not implement internals for: the wireless control library and
// the 802.11 frame decoder, plus the command/event pipes and the clock.
// Kept as narrow interfaces in this one file.
package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
)

// ErrInvalidArgument is the distinguished error TryTune must return for a
// (frequency, width) combination the driver rejects. Any other error is
// fatal to setup.
var ErrInvalidArgument = invalidArgumentError{}

type invalidArgumentError struct{}

func (invalidArgumentError) Error() string { return "invalid argument" }

// DeviceInfo describes a physical wireless device before it is switched
// into monitor mode.
type DeviceInfo struct {
	Name         string
	OriginalMode string
	Frequencies  []int // MHz, as reported by the driver
}

// MonitorHandle identifies the monitor-mode interface created for a
// collection run.
type MonitorHandle struct {
	Name       string
	PhysDevice string
}

// RadioController is the external wireless-control collaborator:
// enumerate interfaces, flip mode, add/delete virtual interfaces, bring
// links up/down, enumerate frequencies, and set frequency+width.
type RadioController interface {
	Probe(dev string) (DeviceInfo, error)
	ToMonitor(dev string) (MonitorHandle, error)
	Freqs(h MonitorHandle) ([]int, error)
	Widths() []string
	TryTune(h MonitorHandle, mhz int, width string) error // ErrInvalidArgument on rejection
	Restore(h MonitorHandle, originalName, originalMode string) error
}

// RadiotapInfo is the subset of a parsed radiotap header the core needs.
type RadiotapInfo struct {
	RSSI        *int // dBm, nil if absent
	Channel     int
	FCSPresent  bool
	HeaderBytes int
}

// DSFlags are the 802.11 to-DS/from-DS bits.
type DSFlags struct {
	ToDS   bool
	FromDS bool
}

// MPDU is the subset of a parsed 802.11 MAC header + information elements
// the core needs.
type MPDU struct {
	Type    int
	Subtype int
	Addr1   string
	Addr2   string
	Addr3   string
	DS      DSFlags
	SSID    string // from the SSID information element, if present
}

// FrameDecoder is the external 802.11 frame decoder collaborator. It is
// assumed to validate frame integrity; the core only drops a frame when
// either call returns an error.
type FrameDecoder interface {
	ParseRadiotap(raw []byte) (RadiotapInfo, error)
	ParseMPDU(raw []byte, fcsPresent bool) (MPDU, error)
}

// CommandSource is the Presenter -> Supervisor command pipe.
type CommandSource interface {
	Recv(ctx context.Context) (domain.Command, error)
}

// EventSink is the Supervisor -> Presenter event pipe.
type EventSink interface {
	Send(domain.Event) error
}

// Clock abstracts time.Now so tests can assert monotonic-timestamp
// behavior deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}
