// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// IPHeader represents the L3 header fields the analyser needs.
type IPHeader struct {
	Version  uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol uint8 // TCP=6, UDP=17
	TTL      uint8
}

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // Redundant storage for convenience
}

// RTPHeader carries the RTP fixed-header fields extracted by the decoder.
type RTPHeader struct {
	Seq         uint16
	Timestamp   uint32
	Marker      bool
	PayloadType uint8
	SSRC        uint32

	// PayloadTypeName is the encoding name announced by signaling
	// (e.g. "opus"); empty when unknown.
	PayloadTypeName string
	// PayloadRate is the clock rate announced by signaling; 0 when unknown.
	PayloadRate uint32

	DataLen    uint32 // whole RTP datagram: header + payload + padding
	PayloadLen uint32 // payload including padding
	PaddingLen uint32
}
