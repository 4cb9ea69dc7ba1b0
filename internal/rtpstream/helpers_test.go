package rtpstream

import (
	"net/netip"
	"time"

	"firestige.xyz/otus-rtp/internal/core"
)

const testSSRC = 0xAABBCCDD

var (
	testSrc = netip.MustParseAddrPort("10.0.0.1:5004")
	testDst = netip.MustParseAddrPort("10.0.0.2:6004")
)

// pcmu builds a 20 ms G.711 packet: 12 byte header plus 160 byte payload.
func pcmu(frame uint64, ms float64, seq uint16, ts uint32) *core.Packet {
	return &core.Packet{
		Frame:               frame,
		Arrival:             time.Duration(ms * float64(time.Millisecond)),
		Timestamp:           time.Unix(1700000000, 0).Add(time.Duration(ms * float64(time.Millisecond))),
		PassedDisplayFilter: true,
		Src:                 testSrc,
		Dst:                 testDst,
		RTP: &core.RTPHeader{
			Seq:         seq,
			Timestamp:   ts,
			PayloadType: 0,
			SSRC:        testSSRC,
			DataLen:     172,
			PayloadLen:  160,
		},
	}
}

// feed runs packets through a fresh StreamInfo.
func feed(pkts ...*core.Packet) (*StreamInfo, []Flags) {
	si := NewStreamInfo(pkts[0])
	flags := make([]Flags, 0, len(pkts))
	for _, p := range pkts {
		flags = append(flags, si.Update(p))
	}
	return si, flags
}
