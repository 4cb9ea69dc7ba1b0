// Package core defines core data structures with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// RawPacket is one frame read from a capture.
type RawPacket struct {
	Frame      uint64    // 1-based frame number within the capture
	Data       []byte    // Raw frame data
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length
}

// DecodedPacket is the result of L2-L4 protocol stack decoding.
type DecodedPacket struct {
	Frame     uint64
	Timestamp time.Time
	IP        IPHeader
	Transport TransportHeader
	Payload   []byte // Application layer payload, zero-copy slice
	Truncated bool   // Capture was cut short by the snap length
}

// Src returns the source transport address.
func (p *DecodedPacket) Src() netip.AddrPort {
	return netip.AddrPortFrom(p.IP.SrcIP, p.Transport.SrcPort)
}

// Dst returns the destination transport address.
func (p *DecodedPacket) Dst() netip.AddrPort {
	return netip.AddrPortFrom(p.IP.DstIP, p.Transport.DstPort)
}

// Packet is the per-packet input of the stream analyser.
type Packet struct {
	Frame     uint64
	Arrival   time.Duration // since the first frame of the capture
	Timestamp time.Time     // absolute capture time

	// PassedDisplayFilter reports whether the frame matched the active
	// display filter. Sources without a filter set it to true.
	PassedDisplayFilter bool

	Src netip.AddrPort
	Dst netip.AddrPort

	RTP  *RTPHeader
	Data []byte // whole RTP datagram, written verbatim by exports

	Truncated bool

	// Signaling back-reference; zero when no setup was observed.
	SetupFrame uint64
	CallID     string
}

// Validate checks that the fields every analysis mode relies on are present.
func (p *Packet) Validate() error {
	if p == nil {
		return fmt.Errorf("nil packet: %w", ErrMalformedPacket)
	}
	if p.RTP == nil {
		return fmt.Errorf("frame %d: missing rtp header: %w", p.Frame, ErrMalformedPacket)
	}
	if !p.Src.IsValid() || !p.Dst.IsValid() {
		return fmt.Errorf("frame %d: missing endpoint address: %w", p.Frame, ErrMalformedPacket)
	}
	return nil
}

// IsIPv6 reports whether the packet was carried over IPv6.
func (p *Packet) IsIPv6() bool {
	return p.Src.Addr().Is6() && !p.Src.Addr().Is4In6()
}
