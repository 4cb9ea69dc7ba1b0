// Package rtpstream groups RTP packets into streams and keeps per-stream
// loss, jitter, skew and bandwidth statistics.
package rtpstream

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"firestige.xyz/otus-rtp/internal/core"
)

// Identity names one RTP stream: a directed transport pair plus SSRC.
type Identity struct {
	Src  netip.AddrPort
	Dst  netip.AddrPort
	SSRC uint32
}

// endpointKey is the ssrc-less part of an Identity, used as bucket key.
type endpointKey struct {
	src netip.AddrPort
	dst netip.AddrPort
}

// IdentityOf returns the identity of the stream pkt belongs to.
func IdentityOf(pkt *core.Packet) Identity {
	id := Identity{Src: pkt.Src, Dst: pkt.Dst}
	if pkt.RTP != nil {
		id.SSRC = pkt.RTP.SSRC
	}
	return id.normalize()
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (id Identity) normalize() Identity {
	return Identity{Src: unmap(id.Src), Dst: unmap(id.Dst), SSRC: id.SSRC}
}

func (id Identity) key() endpointKey {
	n := id.normalize()
	return endpointKey{src: n.Src, dst: n.Dst}
}

// Equal compares endpoints and SSRC.
func (id Identity) Equal(other Identity) bool {
	return id.EqualEndpoints(other) && id.SSRC == other.SSRC
}

// EqualEndpoints compares source and destination only.
func (id Identity) EqualEndpoints(other Identity) bool {
	return id.key() == other.key()
}

// IsReverse reports whether other flows in the opposite direction between
// the same endpoints. SSRC is not compared. A flow whose source equals its
// destination has no reverse.
func (id Identity) IsReverse(other Identity) bool {
	return unmap(id.Src) == unmap(other.Dst) && unmap(id.Dst) == unmap(other.Src) &&
		!id.EqualEndpoints(other)
}

// String formats the identity as SRC:PORT>DST:PORT/0xSSRC, the form
// ParseIdentity accepts.
func (id Identity) String() string {
	return fmt.Sprintf("%s>%s/0x%08X", id.Src, id.Dst, id.SSRC)
}

// ParseIdentity parses SRC:PORT>DST:PORT/SSRC. IPv6 addresses are written
// in brackets. SSRC is hex with a 0x prefix or decimal.
func ParseIdentity(s string) (Identity, error) {
	slash := strings.LastIndex(s, "/")
	if slash < 0 {
		return Identity{}, fmt.Errorf("stream %q: missing /SSRC", s)
	}
	pair, ssrcText := s[:slash], s[slash+1:]

	src, dst, ok := strings.Cut(pair, ">")
	if !ok {
		return Identity{}, fmt.Errorf("stream %q: expected SRC>DST", s)
	}
	srcAP, err := netip.ParseAddrPort(strings.TrimSpace(src))
	if err != nil {
		return Identity{}, fmt.Errorf("stream %q: source: %w", s, err)
	}
	dstAP, err := netip.ParseAddrPort(strings.TrimSpace(dst))
	if err != nil {
		return Identity{}, fmt.Errorf("stream %q: destination: %w", s, err)
	}
	ssrc, err := strconv.ParseUint(strings.TrimSpace(ssrcText), 0, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("stream %q: ssrc: %w", s, err)
	}

	return Identity{Src: srcAP, Dst: dstAP, SSRC: uint32(ssrc)}.normalize(), nil
}
