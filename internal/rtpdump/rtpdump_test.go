package rtpdump

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

func testInfo(src, dst string) rtpstream.StreamInfo {
	return rtpstream.StreamInfo{
		ID: rtpstream.Identity{
			Src:  netip.MustParseAddrPort(src),
			Dst:  netip.MustParseAddrPort(dst),
			SSRC: 0xAABBCCDD,
		},
		StartAbsTime: time.Unix(1700000000, 123456000),
	}
}

func TestHeaderBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(testInfo("10.0.0.1:5004", "10.0.0.2:6004")))

	want := []byte("#!rtpplay1.0 10.0.0.2/6004\n")
	want = append(want,
		0x65, 0x53, 0xF1, 0x00, // 1700000000
		0x00, 0x01, 0xE2, 0x40, // 123456 us
		10, 0, 0, 1, // source
		0x13, 0x8C, // 5004
		0x00, 0x00, // reserved
	)
	assert.Equal(t, want, buf.Bytes())
}

func TestSampleBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteSample(Sample{Offset: 20, Data: []byte{0x80, 0x00, 0xAB}}))

	assert.Equal(t, []byte{
		0x00, 0x0B, // length = plen + 8
		0x00, 0x03, // plen
		0x00, 0x00, 0x00, 0x14, // offset
		0x80, 0x00, 0xAB,
	}, buf.Bytes())
}

func TestRoundTrip(t *testing.T) {
	info := testInfo("10.0.0.1:5004", "10.0.0.2:6004")
	samples := []Sample{
		{Offset: 0, Data: bytes.Repeat([]byte{0x80}, 172)},
		{Offset: 20, Data: bytes.Repeat([]byte{0x81}, 172)},
		{Offset: 40, Data: bytes.Repeat([]byte{0x82}, 12)},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(info))
	for _, s := range samples {
		require.NoError(t, w.WriteSample(s))
	}

	r, err := NewReader(&buf)
	require.NoError(t, err)

	h := r.Header()
	assert.Equal(t, info.ID.Dst, h.Dst)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, h.Source)
	assert.Equal(t, uint16(5004), h.SrcPort)
	assert.True(t, info.StartAbsTime.Equal(h.Start))

	for _, want := range samples {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestIPv6Header(t *testing.T) {
	var buf bytes.Buffer
	info := testInfo("[2001:db8::1]:5004", "[2001:db8::2]:6004")
	require.NoError(t, NewWriter(&buf).WriteHeader(info))

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, info.ID.Dst, r.Header().Dst)
	assert.Equal(t, [4]byte{0x20, 0x01, 0x0d, 0xb8}, r.Header().Source)
}

func TestSampleTooLarge(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.WriteSample(Sample{Data: make([]byte, 65528)})
	assert.ErrorIs(t, err, core.ErrSampleTooLarge)

	assert.NoError(t, w.WriteSample(Sample{Data: make([]byte, 65527)}))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrorNamesStream(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.WriteHeader(testInfo("10.0.0.1:5004", "10.0.0.2:6004"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD")
	assert.Contains(t, err.Error(), "disk full")
}

func TestReaderRejectsGarbage(t *testing.T) {
	tests := map[string][]byte{
		"empty":        nil,
		"wrong magic":  []byte("#!rtpplay2.0 10.0.0.2/6004\n"),
		"bad address":  []byte("#!rtpplay1.0 nowhere/6004\n"),
		"short header": []byte("#!rtpplay1.0 10.0.0.2/6004\n\x00\x01"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(data))
			assert.ErrorIs(t, err, core.ErrBadDumpFile)
		})
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(testInfo("10.0.0.1:5004", "10.0.0.2:6004")))
	require.NoError(t, w.WriteSample(Sample{Offset: 1, Data: []byte{1, 2, 3, 4}}))
	data := buf.Bytes()[:buf.Len()-2]

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, core.ErrBadDumpFile)
}
