package core

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"
)

// Test zero values of core structs
func TestStructZeroValues(t *testing.T) {
	t.Run("IPHeader", func(t *testing.T) {
		var ip IPHeader
		if ip.SrcIP.IsValid() {
			t.Errorf("expected invalid SrcIP, got %v", ip.SrcIP)
		}
	})

	t.Run("Packet", func(t *testing.T) {
		var pkt Packet
		if pkt.PassedDisplayFilter {
			t.Error("expected PassedDisplayFilter=false")
		}
		if pkt.RTP != nil {
			t.Errorf("expected RTP=nil, got %v", pkt.RTP)
		}
	})
}

func TestPacketValidate(t *testing.T) {
	src := netip.MustParseAddrPort("10.0.0.1:5004")
	dst := netip.MustParseAddrPort("10.0.0.2:6004")

	tests := []struct {
		name    string
		pkt     *Packet
		wantErr bool
	}{
		{"nil packet", nil, true},
		{"missing rtp", &Packet{Src: src, Dst: dst}, true},
		{"missing src", &Packet{Dst: dst, RTP: &RTPHeader{}}, true},
		{"valid", &Packet{Src: src, Dst: dst, RTP: &RTPHeader{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pkt.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPacket) {
					t.Errorf("expected ErrMalformedPacket, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPacketIsIPv6(t *testing.T) {
	v4 := Packet{Src: netip.MustParseAddrPort("10.0.0.1:5004")}
	if v4.IsIPv6() {
		t.Error("IPv4 source reported as IPv6")
	}
	v6 := Packet{Src: netip.MustParseAddrPort("[2001:db8::1]:5004")}
	if !v6.IsIPv6() {
		t.Error("IPv6 source not reported as IPv6")
	}
}

func TestDecodedPacketEndpoints(t *testing.T) {
	decoded := DecodedPacket{
		Timestamp: time.Now(),
		IP: IPHeader{
			Version:  4,
			SrcIP:    netip.MustParseAddr("192.168.1.1"),
			DstIP:    netip.MustParseAddr("192.168.1.2"),
			Protocol: 17,
		},
		Transport: TransportHeader{SrcPort: 5060, DstPort: 5062, Protocol: 17},
	}

	if got := decoded.Src().String(); got != "192.168.1.1:5060" {
		t.Errorf("expected src 192.168.1.1:5060, got %s", got)
	}
	if got := decoded.Dst().String(); got != "192.168.1.2:5062" {
		t.Errorf("expected dst 192.168.1.2:5062, got %s", got)
	}
}

// Test sentinel errors
func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrPacketTooShort, "otus-rtp: packet too short"},
			{ErrMalformedPacket, "otus-rtp: malformed packet"},
			{ErrNoFilterIdentity, "otus-rtp: no filter stream identity"},
			{ErrConfigInvalid, "otus-rtp: invalid configuration"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("ErrorWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("frame 7: %w", ErrMalformedPacket)
		if !errors.Is(wrapped, ErrMalformedPacket) {
			t.Error("errors.Is failed for wrapped error")
		}
	})
}
