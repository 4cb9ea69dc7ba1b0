// Package testutil builds capture files for tests.
package testutil

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

// Epoch is the capture time of the first frame written by Capture.
var Epoch = time.Unix(1700000000, 0).UTC()

// Frame is one Ethernet/IPv4/UDP frame of a capture.
type Frame struct {
	At      time.Duration // offset from Epoch
	Src     string        // ip:port
	Dst     string
	Payload []byte
}

// RTP builds a 12 byte RTP header plus a zero payload of n bytes.
func RTP(pt uint8, seq uint16, ts, ssrc uint32, marker bool, n int) []byte {
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

// Invite builds a SIP INVITE whose SDP offers PCMU and a dynamic payload
// type at media.
func Invite(callID, media string, dynPT uint8, dynName string, dynRate uint32) []byte {
	host, port, _ := net.SplitHostPort(media)
	sdp := "v=0\r\n" +
		"o=alice 2890844526 2890844526 IN IP4 " + host + "\r\n" +
		"s=-\r\n" +
		"c=IN IP4 " + host + "\r\n" +
		"t=0 0\r\n" +
		fmt.Sprintf("m=audio %s RTP/AVP 0 %d\r\n", port, dynPT) +
		"a=rtpmap:0 PCMU/8000\r\n" +
		fmt.Sprintf("a=rtpmap:%d %s/%d\r\n", dynPT, dynName, dynRate)

	var b strings.Builder
	b.WriteString("INVITE sip:bob@example.com SIP/2.0\r\n")
	b.WriteString("Via: SIP/2.0/UDP " + host + ":5060;branch=z9hG4bK776asdhds\r\n")
	b.WriteString("From: <sip:alice@example.com>;tag=1928301774\r\n")
	b.WriteString("To: <sip:bob@example.com>\r\n")
	b.WriteString("Call-ID: " + callID + "\r\n")
	b.WriteString("CSeq: 1 INVITE\r\n")
	b.WriteString("Max-Forwards: 70\r\n")
	b.WriteString("Content-Type: application/sdp\r\n")
	b.WriteString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(sdp)))
	b.WriteString(sdp)
	return []byte(b.String())
}

// Capture writes frames to a pcap file in a temp dir and returns its path.
func Capture(t *testing.T, frames []Frame) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	for _, fr := range frames {
		data := udpFrame(t, fr.Src, fr.Dst, fr.Payload)
		ci := gopacket.CaptureInfo{
			Timestamp:     Epoch.Add(fr.At),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func udpFrame(t *testing.T, src, dst string, payload []byte) []byte {
	t.Helper()

	srcAddr, err := net.ResolveUDPAddr("udp4", src)
	require.NoError(t, err)
	dstAddr, err := net.ResolveUDPAddr("udp4", dst)
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x66},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcAddr.IP.To4(),
		DstIP:    dstAddr.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcAddr.Port),
		DstPort: layers.UDPPort(dstAddr.Port),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}
