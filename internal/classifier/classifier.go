// Package classifier implements the Frame Classifier and the Network
// Model it exclusively owns: a dispatch loop that turns decoded 802.11
// frames into a narrow AP/Station differential model rather than a
// broad device-profiling graph.
package classifier

import (
	"log"
	"sync"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/lcalzada-xor/capwatch/internal/telemetry"
)

// Classifier parses dequeued frames and maintains the AP/Station network
// model, emitting differential events on every change. It is not
// goroutine-safe by design: it must run on a single loop/thread that
// also owns the model, so all Handle calls must come from the same
// goroutine. Snapshot and Stations are the methods safe to call
// concurrently, for diagnostics.
type Classifier struct {
	targetSSID string
	decoder    ports.FrameDecoder
	clock      ports.Clock
	sink       ports.EventSink

	mu  sync.RWMutex // guards aps/stas only for Snapshot's benefit
	aps map[string]*domain.AccessPoint
	stas map[string]*domain.Station
}

// New creates a Classifier that only recognizes management frames
// advertising targetSSID, the network-name gate every beacon/probe must
// pass before an AP is recorded.
func New(targetSSID string, decoder ports.FrameDecoder, clock ports.Clock, sink ports.EventSink) *Classifier {
	if clock == nil {
		clock = ports.SystemClock
	}
	return &Classifier{
		targetSSID: targetSSID,
		decoder:    decoder,
		clock:      clock,
		sink:       sink,
		aps:        make(map[string]*domain.AccessPoint),
		stas:       make(map[string]*domain.Station),
	}
}

// Handle runs one frame through the full classification algorithm. Parse
// failures and frames that don't match any recognized case are dropped
// silently; they are non-fatal.
func (c *Classifier) Handle(raw []byte) {
	rt, err := c.decoder.ParseRadiotap(raw)
	if err != nil {
		return
	}
	if rt.HeaderBytes < 0 || rt.HeaderBytes > len(raw) {
		return
	}

	mpdu, err := c.decoder.ParseMPDU(raw[rt.HeaderBytes:], rt.FCSPresent)
	if err != nil {
		return
	}

	switch mpdu.Type {
	case 0:
		c.handleMgmt(mpdu, rt)
	case 2:
		c.handleData(mpdu, rt)
	default:
		// other types: drop
	}
}

func (c *Classifier) handleMgmt(mpdu ports.MPDU, rt ports.RadiotapInfo) {
	switch mpdu.Subtype {
	case 8, 0, 5: // beacon, association-request, probe-response
	default:
		return
	}
	if mpdu.SSID != c.targetSSID {
		return
	}

	bssid := mpdu.Addr3
	c.mu.Lock()
	ap, known := c.aps[bssid]
	if !known {
		rssi := 0
		if rt.RSSI != nil {
			rssi = *rt.RSSI
		}
		ap = domain.NewAccessPoint(bssid, rssi)
		if rt.RSSI == nil {
			ap.RSSI = nil
		}
		c.aps[bssid] = ap
	} else if rt.RSSI != nil {
		ap.UpdateRSSI(*rt.RSSI)
	}
	c.mu.Unlock()

	kind := domain.EventAPUpd
	if !known {
		kind = domain.EventAPNew
	}
	c.emit(domain.NewAPEvent(kind, bssid, rt.RSSI))
}

func (c *Classifier) handleData(mpdu ports.MPDU, rt ports.RadiotapInfo) {
	var bssid, sta string
	var rssi *int

	switch {
	case mpdu.DS.ToDS && !mpdu.DS.FromDS:
		bssid, sta, rssi = mpdu.Addr1, mpdu.Addr2, rt.RSSI
	case !mpdu.DS.ToDS && mpdu.DS.FromDS:
		bssid, sta, rssi = mpdu.Addr2, mpdu.Addr1, nil
	default:
		return // ambiguous DS combination: drop
	}

	if sta == domain.BroadcastMAC {
		return
	}

	c.mu.Lock()
	ap, apKnown := c.aps[bssid]
	if !apKnown {
		c.mu.Unlock()
		return
	}

	ts := c.clock.Now().Unix()
	station, known := c.stas[sta]
	if !known {
		station = domain.NewStation(sta, bssid, ts, rt.Channel, rssi)
		c.stas[sta] = station
		ap.Stations[sta] = struct{}{}
	} else {
		station.Update(ts, rt.Channel, rssi)
	}
	ap.UpdateChannel(rt.Channel)
	c.mu.Unlock()

	kind := domain.EventSTAUpd
	if !known {
		kind = domain.EventSTANew
	}
	c.emit(domain.NewSTAEvent(kind, sta, domain.StationInfo{
		BSSID:   bssid,
		Ts:      station.LastSeen,
		Channel: station.Channel,
		RSSI:    station.RSSI,
	}))
}

func (c *Classifier) emit(ev domain.Event) {
	telemetry.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	if c.sink == nil {
		return
	}
	if err := c.sink.Send(ev); err != nil {
		log.Printf("classifier: event send failed: %v", err)
	}
}

// Snapshot returns a defensive copy of the current AP map, keyed by
// BSSID, for diagnostics or a session-end audit record. It is safe to
// call from any goroutine.
func (c *Classifier) Snapshot() map[string]domain.AccessPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.AccessPoint, len(c.aps))
	for k, v := range c.aps {
		out[k] = *v
	}
	return out
}

// Stations returns a defensive copy of the current station map, keyed by
// MAC, for a session-end report. It is safe to call from any goroutine.
func (c *Classifier) Stations() map[string]domain.Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Station, len(c.stas))
	for k, v := range c.stas {
		out[k] = *v
	}
	return out
}
