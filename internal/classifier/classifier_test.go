package classifier

import (
	"testing"
	"time"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDecoder replays a fixed radiotap/MPDU pair regardless of the
// raw bytes passed in, so tests can drive Handle without real frame
// bytes or a live gopacket decode.
type scriptedDecoder struct {
	rt   ports.RadiotapInfo
	mpdu ports.MPDU
	err  error
}

func (d scriptedDecoder) ParseRadiotap([]byte) (ports.RadiotapInfo, error) {
	return d.rt, d.err
}

func (d scriptedDecoder) ParseMPDU([]byte, bool) (ports.MPDU, error) {
	return d.mpdu, d.err
}

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type collectingSink struct {
	events []domain.Event
}

func (s *collectingSink) Send(e domain.Event) error {
	s.events = append(s.events, e)
	return nil
}

func intp(v int) *int { return &v }

func TestClassifier_BeaconCreatesAP(t *testing.T) {
	sink := &collectingSink{}
	c := New("target-net", scriptedDecoder{
		rt:   ports.RadiotapInfo{RSSI: intp(-40), Channel: 6},
		mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "target-net"},
	}, fakeClock{}, sink)

	c.Handle([]byte("frame"))

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventAPNew, sink.events[0].Kind)
	assert.Equal(t, "aa:aa:aa:aa:aa:aa", sink.events[0].BSSID)
}

func TestClassifier_WrongSSIDIsIgnored(t *testing.T) {
	sink := &collectingSink{}
	c := New("target-net", scriptedDecoder{
		mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "other-net"},
	}, fakeClock{}, sink)

	c.Handle([]byte("frame"))

	assert.Empty(t, sink.events)
	assert.Empty(t, c.Snapshot())
}

func TestClassifier_SecondBeaconUpdates(t *testing.T) {
	sink := &collectingSink{}
	dec := &mutableDecoder{mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "target-net"}}
	c := New("target-net", dec, fakeClock{}, sink)

	c.Handle([]byte("frame"))
	dec.rt.RSSI = intp(-55)
	c.Handle([]byte("frame"))

	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.EventAPNew, sink.events[0].Kind)
	assert.Equal(t, domain.EventAPUpd, sink.events[1].Kind)
}

func TestClassifier_StationRequiresKnownBSSID(t *testing.T) {
	sink := &collectingSink{}
	c := New("target-net", scriptedDecoder{
		mpdu: ports.MPDU{Type: 2, Addr1: "aa:aa:aa:aa:aa:aa", Addr2: "bb:bb:bb:bb:bb:bb", DS: ports.DSFlags{ToDS: true, FromDS: false}},
	}, fakeClock{}, sink)

	c.Handle([]byte("frame"))

	assert.Empty(t, sink.events, "station for an unknown BSSID must not be created")
}

func TestClassifier_BroadcastStationIsDropped(t *testing.T) {
	sink := &collectingSink{}
	dec := &mutableDecoder{mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "target-net"}}
	c := New("target-net", dec, fakeClock{}, sink)
	c.Handle([]byte("beacon"))

	dec.mpdu = ports.MPDU{
		Type: 2, Addr1: domain.BroadcastMAC, Addr2: "aa:aa:aa:aa:aa:aa",
		DS: ports.DSFlags{ToDS: false, FromDS: true},
	}
	c.Handle([]byte("data"))

	require.Len(t, sink.events, 1, "only the AP-new from the beacon, no station event")
	assert.Equal(t, domain.EventAPNew, sink.events[0].Kind)
}

func TestClassifier_StationFromAndToDirection(t *testing.T) {
	sink := &collectingSink{}
	dec := &mutableDecoder{
		rt:   ports.RadiotapInfo{Channel: 11, RSSI: intp(-30)},
		mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "target-net"},
	}
	c := New("target-net", dec, fakeClock{}, sink)
	c.Handle([]byte("beacon"))

	// to-DS: station -> AP, rssi present
	dec.mpdu = ports.MPDU{
		Type: 2, Addr1: "aa:aa:aa:aa:aa:aa", Addr2: "cc:cc:cc:cc:cc:cc",
		DS: ports.DSFlags{ToDS: true, FromDS: false},
	}
	c.Handle([]byte("data-up"))

	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.EventSTANew, sink.events[1].Kind)
	assert.Equal(t, "cc:cc:cc:cc:cc:cc", sink.events[1].Station)
	require.NotNil(t, sink.events[1].StaInfo.RSSI)
	assert.Equal(t, -30, *sink.events[1].StaInfo.RSSI)

	// from-DS: AP -> station, rssi nil per spec, but previous rssi retained
	dec.rt.RSSI = intp(-90)
	dec.mpdu = ports.MPDU{
		Type: 2, Addr1: "cc:cc:cc:cc:cc:cc", Addr2: "aa:aa:aa:aa:aa:aa",
		DS: ports.DSFlags{ToDS: false, FromDS: true},
	}
	c.Handle([]byte("data-down"))

	require.Len(t, sink.events, 3)
	assert.Equal(t, domain.EventSTAUpd, sink.events[2].Kind)
	require.NotNil(t, sink.events[2].StaInfo.RSSI)
	assert.Equal(t, -30, *sink.events[2].StaInfo.RSSI, "to-station frames carry no rssi; previous value is kept")
}

func TestClassifier_AmbiguousDSIsDropped(t *testing.T) {
	sink := &collectingSink{}
	dec := &mutableDecoder{mpdu: ports.MPDU{Type: 0, Subtype: 8, Addr3: "aa:aa:aa:aa:aa:aa", SSID: "target-net"}}
	c := New("target-net", dec, fakeClock{}, sink)
	c.Handle([]byte("beacon"))

	dec.mpdu = ports.MPDU{
		Type: 2, Addr1: "aa:aa:aa:aa:aa:aa", Addr2: "cc:cc:cc:cc:cc:cc",
		DS: ports.DSFlags{ToDS: true, FromDS: true},
	}
	c.Handle([]byte("data"))

	assert.Len(t, sink.events, 1, "only the AP-new; the ambiguous DS-flag data frame is dropped")
}

// mutableDecoder lets a test mutate the scripted response between Handle
// calls without re-constructing the Classifier.
type mutableDecoder struct {
	rt   ports.RadiotapInfo
	mpdu ports.MPDU
	err  error
}

func (d *mutableDecoder) ParseRadiotap([]byte) (ports.RadiotapInfo, error) { return d.rt, d.err }
func (d *mutableDecoder) ParseMPDU([]byte, bool) (ports.MPDU, error)       { return d.mpdu, d.err }
