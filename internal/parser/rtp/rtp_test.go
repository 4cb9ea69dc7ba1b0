package rtp

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/signaling"
)

type staticEndpoints map[netip.AddrPort]signaling.Media

func (s staticEndpoints) Lookup(src, dst netip.AddrPort) (signaling.Media, bool) {
	if m, ok := s[dst]; ok {
		return m, true
	}
	m, ok := s[src]
	return m, ok
}

// makeRTPPayload builds a 12-byte RTP header followed by n payload bytes.
//
//	byte 0: V=2  P=pad  X=0  CC=0
//	byte 1: M=marker  PT=pt
func makeRTPPayload(pt uint8, seq uint16, ts uint32, ssrc uint32, marker bool, n int) []byte {
	b := make([]byte, 12+n)
	b[0] = 0x80
	b[1] = pt & 0x7F
	if marker {
		b[1] |= 0x80
	}
	binary.BigEndian.PutUint16(b[2:4], seq)
	binary.BigEndian.PutUint32(b[4:8], ts)
	binary.BigEndian.PutUint32(b[8:12], ssrc)
	return b
}

func udpPacket(sport, dport uint16, payload []byte) *core.DecodedPacket {
	return &core.DecodedPacket{
		Frame: 1,
		IP: core.IPHeader{
			Version:  4,
			SrcIP:    netip.MustParseAddr("10.0.0.1"),
			DstIP:    netip.MustParseAddr("10.0.0.2"),
			Protocol: udpProtocol,
		},
		Transport: core.TransportHeader{SrcPort: sport, DstPort: dport, Protocol: udpProtocol},
		Payload:   payload,
	}
}

func TestCanHandle(t *testing.T) {
	rtpPayload := makeRTPPayload(0, 1, 160, 0xAABBCCDD, false, 160)
	rtcp := []byte{0x80, 200, 0x00, 0x06, 0, 0, 0, 1, 0, 0, 0, 0}

	tests := []struct {
		name string
		cfg  Config
		pkt  *core.DecodedPacket
		want bool
	}{
		{"heuristic any port", Config{Heuristic: true}, udpPacket(5004, 6004, rtpPayload), true},
		{"heuristic in range", Config{Heuristic: true, PortLo: 6000, PortHi: 7000}, udpPacket(40000, 6004, rtpPayload), true},
		{"heuristic out of range", Config{Heuristic: true, PortLo: 10000, PortHi: 20000}, udpPacket(5004, 6004, rtpPayload), false},
		{"heuristic off", Config{}, udpPacket(5004, 6004, rtpPayload), false},
		{"rtcp", Config{Heuristic: true}, udpPacket(5005, 6005, rtcp), false},
		{"short", Config{Heuristic: true}, udpPacket(5004, 6004, rtpPayload[:8]), false},
		{"version 1", Config{Heuristic: true}, udpPacket(5004, 6004, append([]byte{0x40}, rtpPayload[1:]...)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewParser(tt.cfg, nil).CanHandle(tt.pkt))
		})
	}

	t.Run("tcp", func(t *testing.T) {
		pkt := udpPacket(5004, 6004, rtpPayload)
		pkt.Transport.Protocol = 6
		assert.False(t, NewParser(Config{Heuristic: true}, nil).CanHandle(pkt))
	})
}

func TestCanHandleSignaledFlow(t *testing.T) {
	eps := staticEndpoints{netip.MustParseAddrPort("10.0.0.2:6004"): {SetupFrame: 3}}
	p := NewParser(Config{}, eps)

	assert.True(t, p.CanHandle(udpPacket(5004, 6004, makeRTPPayload(0, 1, 0, 1, false, 160))))
	assert.False(t, p.CanHandle(udpPacket(5004, 6006, makeRTPPayload(0, 1, 0, 1, false, 160))))
}

func TestParse(t *testing.T) {
	payload := makeRTPPayload(0, 4242, 123456, 0xAABBCCDD, true, 160)

	res, err := NewParser(Config{Heuristic: true}, nil).Parse(udpPacket(5004, 6004, payload))
	require.NoError(t, err)

	h := res.Header
	assert.Equal(t, uint16(4242), h.Seq)
	assert.Equal(t, uint32(123456), h.Timestamp)
	assert.True(t, h.Marker)
	assert.Equal(t, uint8(0), h.PayloadType)
	assert.Equal(t, uint32(0xAABBCCDD), h.SSRC)
	assert.Equal(t, uint32(172), h.DataLen)
	assert.Equal(t, uint32(160), h.PayloadLen)
	assert.Zero(t, h.PaddingLen)
	assert.Zero(t, res.SetupFrame)
}

func TestParsePadding(t *testing.T) {
	payload := makeRTPPayload(0, 1, 0, 1, false, 164)
	payload[0] |= 0x20
	payload[len(payload)-1] = 4

	res, err := NewParser(Config{Heuristic: true}, nil).Parse(udpPacket(5004, 6004, payload))
	require.NoError(t, err)
	assert.Equal(t, uint32(176), res.Header.DataLen)
	assert.Equal(t, uint32(164), res.Header.PayloadLen)
	assert.Equal(t, uint32(4), res.Header.PaddingLen)
}

func TestParseSignaledNames(t *testing.T) {
	eps := staticEndpoints{netip.MustParseAddrPort("10.0.0.2:6004"): {
		SetupFrame:   3,
		CallID:       "call-1",
		PayloadNames: map[uint8]string{111: "opus"},
		Rates:        map[uint8]uint32{111: 48000},
	}}

	res, err := NewParser(Config{}, eps).Parse(udpPacket(5004, 6004, makeRTPPayload(111, 1, 0, 1, false, 60)))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.SetupFrame)
	assert.Equal(t, "call-1", res.CallID)
	assert.Equal(t, "opus", res.Header.PayloadTypeName)
	assert.Equal(t, uint32(48000), res.Header.PayloadRate)
}

func TestParseErrors(t *testing.T) {
	p := NewParser(Config{Heuristic: true}, nil)

	_, err := p.Parse(udpPacket(5004, 6004, []byte{0x80, 0x00}))
	assert.True(t, errors.Is(err, core.ErrNotRTP))

	// CSRC count promises more header than present
	bad := makeRTPPayload(0, 1, 0, 1, false, 0)
	bad[0] |= 0x0F
	_, err = p.Parse(udpPacket(5004, 6004, bad))
	assert.True(t, errors.Is(err, core.ErrMalformedPacket))
}
