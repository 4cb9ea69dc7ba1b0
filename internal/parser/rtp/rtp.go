// Package rtp recognises RTP datagrams and extracts the fixed header.
//
// A datagram is accepted when signaling announced one of its endpoints,
// or, with heuristics enabled, when its header looks like RTP: version 2,
// at least the 12 byte fixed header, and not an RTCP packet type.
//
// RTCP is distinguished from RTP by payload-type values 200–209 (SR, RR, SDES, BYE…).
package rtp

import (
	"fmt"
	"net/netip"

	pionrtp "github.com/pion/rtp"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/signaling"
)

const (
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209

	rtpMinLength = 12 // Fixed RTP header size (RFC 3550 §5.1)
	udpProtocol  = 17
)

// Endpoints is the signaling view of negotiated media.
type Endpoints interface {
	Lookup(src, dst netip.AddrPort) (signaling.Media, bool)
}

// Config controls which flows are treated as RTP.
type Config struct {
	Heuristic bool
	// PortLo and PortHi limit heuristic detection to flows with an
	// endpoint in the range. Zero values mean any port.
	PortLo uint16
	PortHi uint16
}

// Result is a parsed RTP datagram.
type Result struct {
	Header     *core.RTPHeader
	SetupFrame uint64
	CallID     string
}

// Parser recognises and parses RTP datagrams.
type Parser struct {
	cfg       Config
	endpoints Endpoints
}

// NewParser creates a Parser. endpoints may be nil.
func NewParser(cfg Config, endpoints Endpoints) *Parser {
	return &Parser{cfg: cfg, endpoints: endpoints}
}

// CanHandle decides whether pkt should be parsed as RTP.
//
// Decision order (cheapest first):
//  1. UDP only, and the header must look like RTP rather than RTCP.
//  2. Flows announced by signaling are always accepted.
//  3. Otherwise heuristics decide, bounded by the port range.
func (p *Parser) CanHandle(pkt *core.DecodedPacket) bool {
	if pkt.Transport.Protocol != udpProtocol {
		return false
	}
	if !looksLikeRTP(pkt.Payload) {
		return false
	}
	if p.endpoints != nil {
		if _, ok := p.endpoints.Lookup(pkt.Src(), pkt.Dst()); ok {
			return true
		}
	}
	if !p.cfg.Heuristic {
		return false
	}
	return p.inPortRange(pkt.Transport.SrcPort) || p.inPortRange(pkt.Transport.DstPort)
}

func (p *Parser) inPortRange(port uint16) bool {
	if p.cfg.PortLo == 0 && p.cfg.PortHi == 0 {
		return true
	}
	return port >= p.cfg.PortLo && port <= p.cfg.PortHi
}

// Parse decodes the RTP header of pkt and attaches what signaling knows
// about the flow.
func (p *Parser) Parse(pkt *core.DecodedPacket) (Result, error) {
	if !looksLikeRTP(pkt.Payload) {
		return Result{}, fmt.Errorf("frame %d: %w", pkt.Frame, core.ErrNotRTP)
	}

	var rp pionrtp.Packet
	if err := rp.Unmarshal(pkt.Payload); err != nil {
		return Result{}, fmt.Errorf("frame %d: %w: %w", pkt.Frame, core.ErrMalformedPacket, err)
	}

	padding := uint32(0)
	if rp.Header.Padding {
		padding = uint32(rp.PaddingSize)
	}
	h := &core.RTPHeader{
		Seq:         rp.SequenceNumber,
		Timestamp:   rp.Timestamp,
		Marker:      rp.Marker,
		PayloadType: rp.PayloadType,
		SSRC:        rp.SSRC,
		DataLen:     uint32(len(pkt.Payload)),
		PayloadLen:  uint32(len(rp.Payload)) + padding,
		PaddingLen:  padding,
	}

	res := Result{Header: h}
	if p.endpoints != nil {
		if media, ok := p.endpoints.Lookup(pkt.Src(), pkt.Dst()); ok {
			res.SetupFrame = media.SetupFrame
			res.CallID = media.CallID
			h.PayloadTypeName = media.PayloadNames[h.PayloadType]
			h.PayloadRate = media.Rates[h.PayloadType]
		}
	}
	return res, nil
}

// looksLikeRTP returns true when the payload passes lightweight header checks.
//
// Rules:
//   - At least the 12 byte fixed header.
//   - First 2 bits (V field) == 0b10 (version 2).
//   - Byte 1 is not an RTCP packet type (200–209).
func looksLikeRTP(payload []byte) bool {
	if len(payload) < rtpMinLength {
		return false
	}
	if (payload[0]>>6)&0x3 != 2 {
		return false
	}
	pt := payload[1]
	return pt < rtcpPayloadTypeMin || pt > rtcpPayloadTypeMax
}
