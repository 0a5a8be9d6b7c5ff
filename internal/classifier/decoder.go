package classifier

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
)

// GopacketDecoder implements ports.FrameDecoder on top of
// github.com/google/gopacket/layers' radiotap and 802.11 decoding.
type GopacketDecoder struct{}

var _ ports.FrameDecoder = GopacketDecoder{}

// ParseRadiotap decodes the leading radiotap header of raw.
func (GopacketDecoder) ParseRadiotap(raw []byte) (ports.RadiotapInfo, error) {
	packet := gopacket.NewPacket(raw, layers.LayerTypeRadioTap, gopacket.NoCopy)
	rtLayer := packet.Layer(layers.LayerTypeRadioTap)
	if rtLayer == nil {
		return ports.RadiotapInfo{}, errors.New("classifier: no radiotap layer")
	}
	rt, ok := rtLayer.(*layers.RadioTap)
	if !ok {
		return ports.RadiotapInfo{}, errors.New("classifier: unexpected radiotap layer type")
	}

	info := ports.RadiotapInfo{
		Channel:     int(rt.ChannelFrequency),
		HeaderBytes: int(rt.Length),
		FCSPresent:  rt.Flags.FCS(),
	}
	if rt.Present.DBMAntennaSignal() {
		rssi := int(rt.DBMAntennaSignal)
		info.RSSI = &rssi
	}
	return info, nil
}

// ParseMPDU decodes the 802.11 MAC header and information elements
// following the radiotap header. raw must already have the radiotap
// header stripped off by the caller.
func (GopacketDecoder) ParseMPDU(raw []byte, fcsPresent bool) (ports.MPDU, error) {
	if fcsPresent && len(raw) >= 4 {
		raw = raw[:len(raw)-4]
	}

	packet := gopacket.NewPacket(raw, layers.LayerTypeDot11, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return ports.MPDU{}, errLayer.Error()
	}

	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return ports.MPDU{}, errors.New("classifier: no dot11 layer")
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return ports.MPDU{}, errors.New("classifier: unexpected dot11 layer type")
	}

	m := ports.MPDU{
		Addr1: dot11.Address1.String(),
		Addr2: dot11.Address2.String(),
		Addr3: dot11.Address3.String(),
		DS:    ports.DSFlags{ToDS: dot11.Flags.ToDS(), FromDS: dot11.Flags.FromDS()},
	}

	switch dot11.Type.MainType() {
	case layers.Dot11TypeMgmt:
		m.Type = 0
	case layers.Dot11TypeData:
		m.Type = 2
	default:
		m.Type = -1
		return m, nil
	}

	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		m.Subtype = 8
	case layers.Dot11TypeMgmtAssociationReq:
		m.Subtype = 0
	case layers.Dot11TypeMgmtProbeResp:
		m.Subtype = 5
	default:
		m.Subtype = -1
	}

	if m.Type == 0 && (m.Subtype == 8 || m.Subtype == 0 || m.Subtype == 5) {
		for _, l := range packet.Layers() {
			ie, ok := l.(*layers.Dot11InformationElement)
			if ok && ie.ID == layers.Dot11InformationElementIDSSID {
				m.SSID = string(ie.Info)
				break
			}
		}
	}

	return m, nil
}
