// Package domain holds the data model shared by the collection subsystem:
// access points, stations, scan entries, and the configuration that seeds
// a collection run.
package domain

import "fmt"

// BroadcastMAC is the link-layer broadcast address. It is never a valid
// Station key.
const BroadcastMAC = "ff:ff:ff:ff:ff:ff"

// AccessPoint is an 802.11 infrastructure radio advertising the configured
// target network name, keyed by BSSID. Created on the first matching
// management frame, updated on every subsequent one, destroyed only on
// collector shutdown.
type AccessPoint struct {
	BSSID    string
	RSSI     *int // last-observed signal strength, dBm
	Channel  *int // last-observed channel, nil until a station frame informs it
	Stations map[string]struct{}
}

// NewAccessPoint creates an AccessPoint with the given first observation.
func NewAccessPoint(bssid string, rssi int) *AccessPoint {
	r := rssi
	return &AccessPoint{
		BSSID:    bssid,
		RSSI:     &r,
		Stations: make(map[string]struct{}),
	}
}

// UpdateRSSI applies a new management-frame observation. Last writer wins:
// there is no averaging or smoothing of signal strength across frames.
func (a *AccessPoint) UpdateRSSI(rssi int) {
	r := rssi
	a.RSSI = &r
}

// UpdateChannel records the radiotap channel of a station frame involving
// this AP. A station observation is strictly more informative than none,
// so it always overwrites the channel recorded from an earlier station
// frame.
func (a *AccessPoint) UpdateChannel(ch int) {
	c := ch
	a.Channel = &c
}

// Station is an 802.11 client radio, keyed by hardware address. Created
// only for a frame whose peer BSSID is already a known AccessPoint;
// updated thereafter; destroyed only on shutdown.
type Station struct {
	MAC     string
	BSSID   string // associated AP; always a key in the AP map
	LastSeen int64 // monotonic seconds since epoch
	Channel int   // last radiotap channel
	RSSI    *int  // nil if inferred from an AP-originated (to-station) frame

	// Reserved for downstream impersonation bookkeeping. The core never
	// writes these; it only guarantees the fields exist.
	Spoofed int
	Success int
}

// NewStation creates a Station from its first qualifying data frame.
func NewStation(mac, bssid string, ts int64, channel int, rssi *int) *Station {
	return &Station{
		MAC:      mac,
		BSSID:    bssid,
		LastSeen: ts,
		Channel:  channel,
		RSSI:     rssi,
	}
}

// Update applies a subsequent data-frame observation. rssi is only
// overwritten when non-nil, since to-station frames carry no signal
// strength for the station itself.
func (s *Station) Update(ts int64, channel int, rssi *int) {
	s.LastSeen = ts
	s.Channel = channel
	if rssi != nil {
		s.RSSI = rssi
	}
}

// ScanEntry is a (frequency, channel-width) pair the adapter accepts as a
// tuning target. Built once at setup by Cartesian product of supported
// frequencies and widths, filtered through try_tune; immutable thereafter.
type ScanEntry struct {
	FrequencyMHz int
	Width        string
}

func (e ScanEntry) String() string {
	return fmt.Sprintf("%dMHz/%s", e.FrequencyMHz, e.Width)
}

// ConnMode is the Config's connection-mode field; it only gates the
// connecting..operational placeholder band, which this core never enters.
type ConnMode int

const (
	ModeAuto ConnMode = iota
	ModeManual
)

func (m ConnMode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Config fully describes a collection run and must be fully populated
// before a Supervisor is constructed.
type Config struct {
	TargetSSID string
	Interface  string
	Mode       ConnMode
}

// Valid reports whether Config is populated enough to drive the
// invalid -> configured lifecycle transition.
func (c Config) Valid() bool {
	return c.TargetSSID != "" && c.Interface != ""
}
