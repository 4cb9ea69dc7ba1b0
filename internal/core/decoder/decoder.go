// Package decoder implements L2-L4 protocol stack decoding.
package decoder

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/otus-rtp/internal/core"
)

// Decoder decodes raw packets into structured format.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// Config selects the link layer the decoder starts from.
type Config struct {
	LinkType layers.LinkType
}

// StandardDecoder decodes Ethernet / Linux SLL / raw IP frames carrying
// IPv4 or IPv6 with UDP or TCP on top. It reuses its layer structs between
// calls and is not safe for concurrent use.
type StandardDecoder struct {
	linkType layers.LinkType

	eth   layers.Ethernet
	sll   layers.LinuxSLL
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	udp   layers.UDP
	tcp   layers.TCP

	l2Parser  *gopacket.DecodingLayerParser
	ip4Parser *gopacket.DecodingLayerParser
	ip6Parser *gopacket.DecodingLayerParser
	decoded   []gopacket.LayerType
}

// NewStandardDecoder creates a decoder for the configured link type.
// An unset link type defaults to Ethernet.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	d := &StandardDecoder{
		linkType: cfg.LinkType,
		decoded:  make([]gopacket.LayerType, 0, 8),
	}
	if d.linkType == layers.LinkTypeNull {
		d.linkType = layers.LinkTypeEthernet
	}

	upper := []gopacket.DecodingLayer{&d.dot1q, &d.ip4, &d.ip6, &d.udp, &d.tcp}

	switch d.linkType {
	case layers.LinkTypeLinuxSLL:
		d.l2Parser = gopacket.NewDecodingLayerParser(layers.LayerTypeLinuxSLL, append([]gopacket.DecodingLayer{&d.sll}, upper...)...)
	default:
		d.l2Parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, append([]gopacket.DecodingLayer{&d.eth}, upper...)...)
	}
	d.ip4Parser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, upper...)
	d.ip6Parser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6, upper...)

	for _, p := range []*gopacket.DecodingLayerParser{d.l2Parser, d.ip4Parser, d.ip6Parser} {
		p.IgnoreUnsupported = true
	}
	return d
}

// Decode decodes a raw frame down to the transport payload.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	out := core.DecodedPacket{
		Frame:     raw.Frame,
		Timestamp: raw.Timestamp,
		Truncated: raw.CaptureLen < raw.OrigLen,
	}
	if len(raw.Data) == 0 {
		return out, core.ErrPacketTooShort
	}

	parser := d.l2Parser
	if d.linkType == layers.LinkTypeRaw || d.linkType == layers.LinkTypeIPv4 || d.linkType == layers.LinkTypeIPv6 {
		switch raw.Data[0] >> 4 {
		case 4:
			parser = d.ip4Parser
		case 6:
			parser = d.ip6Parser
		default:
			return out, core.ErrUnsupportedProto
		}
	}

	if err := parser.DecodeLayers(raw.Data, &d.decoded); err != nil {
		return out, fmt.Errorf("frame %d: %w: %v", raw.Frame, core.ErrPacketTooShort, err)
	}
	if parser.Truncated {
		out.Truncated = true
	}

	var haveIP, haveL4 bool
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if d.ip4.Flags&layers.IPv4MoreFragments != 0 || d.ip4.FragOffset != 0 {
				return out, core.ErrFragmented
			}
			out.IP = core.IPHeader{
				Version:  4,
				SrcIP:    addrFrom(d.ip4.SrcIP),
				DstIP:    addrFrom(d.ip4.DstIP),
				Protocol: uint8(d.ip4.Protocol),
				TTL:      d.ip4.TTL,
			}
			haveIP = true
		case layers.LayerTypeIPv6:
			out.IP = core.IPHeader{
				Version:  6,
				SrcIP:    addrFrom(d.ip6.SrcIP),
				DstIP:    addrFrom(d.ip6.DstIP),
				Protocol: uint8(d.ip6.NextHeader),
				TTL:      d.ip6.HopLimit,
			}
			haveIP = true
		case layers.LayerTypeUDP:
			out.Transport = core.TransportHeader{
				SrcPort:  uint16(d.udp.SrcPort),
				DstPort:  uint16(d.udp.DstPort),
				Protocol: uint8(layers.IPProtocolUDP),
			}
			out.Payload = d.udp.Payload
			haveL4 = true
		case layers.LayerTypeTCP:
			out.Transport = core.TransportHeader{
				SrcPort:  uint16(d.tcp.SrcPort),
				DstPort:  uint16(d.tcp.DstPort),
				Protocol: uint8(layers.IPProtocolTCP),
			}
			out.Payload = d.tcp.Payload
			haveL4 = true
		}
	}

	if !haveIP || !haveL4 {
		return out, core.ErrUnsupportedProto
	}
	return out, nil
}

// addrFrom converts a gopacket address into a netip value, unmapping
// IPv4-in-IPv6 so that the same endpoint compares equal either way.
func addrFrom(ip []byte) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
