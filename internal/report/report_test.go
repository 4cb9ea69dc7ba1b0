package report

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/otus-rtp/internal/rtpdump"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

func views() []rtpstream.CalculatedView {
	return []rtpstream.CalculatedView{
		{
			Stream:        "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD",
			Source:        "10.0.0.1:5004",
			Destination:   "10.0.0.2:6004",
			SSRC:          0xAABBCCDD,
			PayloadNames:  []string{"g711U"},
			Packets:       12345,
			Expected:      12350,
			Lost:          5,
			LostPct:       0.04,
			MaxDelta:      40.5,
			MaxDeltaFrame: 77,
			MaxJitter:     1.25,
			ClockRate:     8000,
			ClockDrift:    -3.5,
			FreqDriftPct:  -0.01,
			Duration:      246900,
			Problem:       true,
		},
		{
			Stream:       "10.0.0.2:6004>10.0.0.1:5004/0x01020304",
			PayloadNames: []string{"Unknown(101)"},
			Packets:      3,
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "JSON": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestStreamsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Streams(&buf, FormatTable, views()))

	out := buf.String()
	assert.Contains(t, out, "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "5 (0.0%)")
	assert.Contains(t, out, "40.50 ms @ 77")
	assert.Contains(t, out, "-3.50 ms (-0.01%)")
	assert.Contains(t, out, "246.90 s")
	assert.Contains(t, out, "Problem")
	assert.Contains(t, out, "Unknown(101)")
}

func TestStreamsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Streams(&buf, FormatJSON, views()))

	var got []rtpstream.CalculatedView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(12345), got[0].Packets)
	assert.True(t, got[0].Problem)
	assert.Contains(t, buf.String(), `"max_delta_ms": 40.5`)
}

func TestStreamsJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Streams(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestStreamsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Streams(&buf, FormatYAML, views()))

	var got []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "10.0.0.2:6004", got[0]["destination"])
	assert.Equal(t, 8000, got[0]["clock_rate"])
}

func TestStreamsUnknownFormat(t *testing.T) {
	assert.Error(t, Streams(&bytes.Buffer{}, Format("xml"), views()))
}

func TestDump(t *testing.T) {
	info := rtpstream.StreamInfo{
		ID: rtpstream.Identity{
			Src:  netip.MustParseAddrPort("10.0.0.1:5004"),
			Dst:  netip.MustParseAddrPort("10.0.0.2:6004"),
			SSRC: 0xAABBCCDD,
		},
		StartAbsTime: time.Unix(1700000000, 0),
	}
	pkt := []byte{0x80, 0x00, 0x00, 0x2A, 0x00, 0x00, 0x00, 0xA0, 0xAA, 0xBB, 0xCC, 0xDD, 0xFF}

	var file bytes.Buffer
	w := rtpdump.NewWriter(&file)
	require.NoError(t, w.WriteHeader(info))
	require.NoError(t, w.WriteSample(rtpdump.Sample{Offset: 0, Data: pkt}))
	require.NoError(t, w.WriteSample(rtpdump.Sample{Offset: 20, Data: []byte{0x01}}))

	r, err := rtpdump.NewReader(&file)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Dump(&out, r))
	s := out.String()
	assert.Contains(t, s, "destination: 10.0.0.2:6004")
	assert.Contains(t, s, "source:      10.0.0.1:5004")
	assert.Contains(t, s, "2023-11-14 22:13:20.000000")
	assert.Contains(t, s, "0xAABBCCDD")
	assert.Contains(t, s, "42")
	assert.Contains(t, s, "20 ms")
	assert.Contains(t, s, "2 samples, 14 B")
}
