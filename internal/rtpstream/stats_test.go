package rtpstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus-rtp/internal/core"
)

func TestFirstPacket(t *testing.T) {
	pkt := pcmu(1, 0, 100, 0)
	pkt.RTP.Marker = true

	si, flags := feed(pkt)
	s := si.Stats

	assert.Equal(t, StateTracking, s.State)
	assert.True(t, flags[0].Has(FlagFirst|FlagMarker))
	assert.Equal(t, uint64(1), s.Total)
	assert.Zero(t, s.Delta)
	assert.Zero(t, s.Jitter)
	assert.Zero(t, s.MaxDelta)
	assert.Equal(t, uint32(8000), s.ClockRate)
	assert.Equal(t, uint16(100), s.StartSeq)
	assert.Equal(t, uint16(100), s.StopSeq)
	assert.Equal(t, uint64(200), s.WindowBytes())
	assert.False(t, si.Problem)
}

func TestSequenceWraparound(t *testing.T) {
	seqs := []uint16{65530, 65531, 65532, 65533, 65534, 65535, 0, 1, 2}
	pkts := make([]*core.Packet, 0, len(seqs))
	for i, seq := range seqs {
		pkts = append(pkts, pcmu(uint64(i+1), float64(i*20), seq, uint32(i*160)))
	}

	si, flags := feed(pkts...)
	view := Calculate(*si)

	for i, f := range flags {
		assert.False(t, f.Has(FlagWrongSeq), "packet %d flagged %s", i, f)
	}
	assert.Equal(t, uint32(1), si.Stats.Cycles)
	assert.Equal(t, uint64(1<<16|2), si.Stats.ExtendedStopSeq())
	assert.Equal(t, uint64(9), view.Packets)
	assert.Equal(t, int64(9), view.Expected)
	assert.Equal(t, int64(0), view.Lost)
	assert.Zero(t, si.Stats.SeqErrors)
	assert.False(t, si.Problem)
}

func TestSequenceWrapFromZeroStart(t *testing.T) {
	s := &StreamStats{}
	h := func(seq uint16) *core.RTPHeader { return &core.RTPHeader{Seq: seq, DataLen: 172} }

	s.Update(0, 1, h(0), false)
	s.StopSeq = 65535
	s.SeqNum = 65535
	s.Update(20e6, 2, h(0), false)
	assert.Equal(t, uint32(1), s.Cycles)
	assert.True(t, s.InWrap)

	s.Update(40e6, 3, h(1), false)
	assert.False(t, s.InWrap)
	assert.Equal(t, uint32(1), s.Cycles)
}

func TestLossAccounting(t *testing.T) {
	si, flags := feed(
		pcmu(1, 0, 1, 0),
		pcmu(2, 20, 2, 160),
		pcmu(3, 40, 3, 320),
		pcmu(4, 80, 5, 640),
		pcmu(5, 100, 6, 800),
	)
	view := Calculate(*si)

	assert.True(t, flags[3].Has(FlagWrongSeq))
	assert.Equal(t, uint16(6), si.Stats.StopSeq)
	assert.Equal(t, int64(6), view.Expected)
	assert.Equal(t, int64(1), view.Lost)
	assert.InDelta(t, 100.0/6, view.LostPct, 1e-9)
	assert.Equal(t, uint32(1), view.SeqErrors)
	assert.True(t, si.Problem)
}

func TestLossPercentage(t *testing.T) {
	seqs := []uint16{0, 1, 2, 3, 5, 6, 7, 9}
	pkts := make([]*core.Packet, 0, len(seqs))
	for i, seq := range seqs {
		pkts = append(pkts, pcmu(uint64(i+1), float64(seq)*20, seq, uint32(seq)*160))
	}

	si, _ := feed(pkts...)
	view := Calculate(*si)

	assert.Equal(t, uint16(0), si.Stats.StartSeq)
	assert.Equal(t, uint16(9), si.Stats.StopSeq)
	assert.Equal(t, uint64(8), view.Packets)
	assert.Equal(t, int64(10), view.Expected)
	assert.Equal(t, int64(2), view.Lost)
	assert.InDelta(t, 20.0, view.LostPct, 1e-9)
}

func TestLateAndDuplicatePackets(t *testing.T) {
	t.Run("late", func(t *testing.T) {
		si, flags := feed(
			pcmu(1, 0, 1, 0),
			pcmu(2, 20, 3, 320),
			pcmu(3, 40, 2, 160),
		)
		assert.True(t, flags[2].Has(FlagWrongSeq))
		assert.Equal(t, uint16(3), si.Stats.SeqNum)
		assert.Equal(t, uint16(2), si.Stats.StopSeq)
		assert.Equal(t, uint32(2), si.Stats.SeqErrors)
	})

	t.Run("duplicate", func(t *testing.T) {
		si, flags := feed(
			pcmu(1, 0, 1, 0),
			pcmu(2, 20, 2, 160),
			pcmu(3, 21, 2, 160),
			pcmu(4, 40, 3, 320),
		)
		view := Calculate(*si)
		assert.True(t, flags[2].Has(FlagWrongSeq))
		assert.False(t, flags[3].Has(FlagWrongSeq))
		assert.Equal(t, int64(3), view.Expected)
		assert.Equal(t, int64(-1), view.Lost)
	})
}

func TestJitterFloorScenario(t *testing.T) {
	si, flags := feed(
		pcmu(1, 0, 100, 0),
		pcmu(2, 20, 101, 160),
		pcmu(3, 40, 102, 320),
		pcmu(4, 60, 103, 480),
		pcmu(5, 80, 104, 640),
	)
	s := si.Stats
	view := Calculate(*si)

	for _, f := range flags[1:] {
		assert.Equal(t, Flags(0), f)
	}
	assert.InDelta(t, 0, s.Jitter, 1e-9)
	assert.InDelta(t, 0, s.MeanJitter, 1e-9)
	assert.InDelta(t, 0, s.MaxJitter, 1e-9)
	assert.InDelta(t, 20, s.MaxDelta, 1e-9)
	assert.Equal(t, uint64(5), s.SumCount)
	assert.Equal(t, int64(0), view.Lost)
	assert.InDelta(t, 0, view.ClockDrift, 1e-9)
	assert.InDelta(t, 0, view.FreqDriftPct, 1e-9)
	assert.InDelta(t, 8000, view.FreqDriftHz, 1e-6)
	assert.InDelta(t, 80, view.Duration, 1e-9)
	assert.False(t, view.Problem)
}

func TestJitterEstimate(t *testing.T) {
	si, _ := feed(
		pcmu(1, 0, 1, 0),
		pcmu(2, 20, 2, 160),
		pcmu(3, 45, 3, 320),
	)
	s := si.Stats

	assert.InDelta(t, 5, s.Diff, 1e-9)
	assert.InDelta(t, 5.0/16, s.Jitter, 1e-9)
	assert.InDelta(t, 5.0/16, s.MaxJitter, 1e-9)
	assert.InDelta(t, 5.0/3, s.MeanJitter, 1e-9)
	assert.InDelta(t, 25, s.MaxDelta, 1e-9)
	assert.Equal(t, uint64(3), s.MaxDeltaFrame)
	assert.InDelta(t, -5, s.MaxSkew, 1e-9)
}

func TestMarkerHandling(t *testing.T) {
	late := pcmu(3, 100, 3, 8000)
	late.RTP.Marker = true
	bad := pcmu(4, 120, 4, 8000)
	bad.RTP.Marker = true

	si, flags := feed(pcmu(1, 0, 1, 0), pcmu(2, 20, 2, 160), late, bad)

	assert.True(t, flags[2].Has(FlagMarker))
	assert.False(t, flags[2].Has(FlagWrongTimestamp))
	assert.True(t, flags[3].Has(FlagWrongTimestamp))
	// the 80 ms talkspurt gap is not a max delta candidate
	assert.InDelta(t, 20, si.Stats.MaxDelta, 1e-9)
	assert.True(t, si.Problem)
}

func TestComfortNoiseFlags(t *testing.T) {
	cn := pcmu(3, 40, 3, 320)
	cn.RTP.PayloadType = PTComfortNoise
	after := pcmu(4, 200, 4, 1600)

	si, flags := feed(pcmu(1, 0, 1, 0), pcmu(2, 20, 2, 160), cn, after)

	assert.True(t, flags[2].Has(FlagComfortNoise|FlagPTChange))
	assert.False(t, flags[2].Has(FlagRegularPTChange))
	assert.True(t, flags[3].Has(FlagFollowsComfortNoise|FlagPTChange))
	assert.False(t, flags[3].Has(FlagRegularPTChange))
	assert.InDelta(t, 20, si.Stats.MaxDelta, 1e-9)
	assert.Equal(t, []string{"CN", "g711U"}, si.PayloadTypeNames)
}

func TestRegularPayloadTypeChange(t *testing.T) {
	next := pcmu(2, 20, 2, 160)
	next.RTP.PayloadType = 8

	_, flags := feed(pcmu(1, 0, 1, 0), next)
	assert.True(t, flags[1].Has(FlagPTChange|FlagRegularPTChange))
}

func TestTelephoneEvent(t *testing.T) {
	ev := pcmu(3, 40, 3, 320)
	ev.RTP.PayloadType = 101
	ev.RTP.PayloadTypeName = "telephone-event"

	si, flags := feed(pcmu(1, 0, 1, 0), pcmu(2, 20, 2, 160), ev)

	assert.True(t, flags[2].Has(FlagTelephoneEvent))
	assert.Equal(t, uint32(8000), si.Stats.ClockRate)
	assert.InDelta(t, 20, si.Stats.Delta, 1e-9)
	assert.Equal(t, uint64(2), si.Stats.SumCount)
}

func TestBandwidthWindow(t *testing.T) {
	pkts := make([]*core.Packet, 0, 101)
	for i := 0; i <= 100; i++ {
		pkts = append(pkts, pcmu(uint64(i+1), float64(i*20), uint16(i), uint32(i*160)))
	}
	si, _ := feed(pkts...)
	s := si.Stats

	// samples at 1000..2000 ms are within a second of the newest
	assert.Equal(t, 51, s.WindowSamples())
	assert.Equal(t, uint64(51*200), s.WindowBytes())
	assert.Equal(t, s.window.sum(), s.WindowBytes())
	assert.InDelta(t, 51*200*8/1000.0, s.Bandwidth, 1e-9)
}

func TestBandwidthIPv6Overhead(t *testing.T) {
	s := &StreamStats{}
	s.Update(0, 1, &core.RTPHeader{DataLen: 172}, true)
	assert.Equal(t, uint64(172+48), s.WindowBytes())
}

func TestBandwidthRingFull(t *testing.T) {
	s := &StreamStats{}
	for i := 0; i < bandwidthSlots+100; i++ {
		s.Update(0, uint64(i+1), &core.RTPHeader{Seq: uint16(i), DataLen: 172}, false)
	}
	require.Equal(t, bandwidthSlots, s.WindowSamples())
	assert.Equal(t, uint64(bandwidthSlots*200), s.WindowBytes())
	assert.Equal(t, s.window.sum(), s.WindowBytes())
}

func TestDriftEstimate(t *testing.T) {
	pkts := make([]*core.Packet, 0, 50)
	for i := 0; i < 50; i++ {
		// sender clock runs 5% fast
		pkts = append(pkts, pcmu(uint64(i+1), float64(i*20), uint16(i), uint32(i*168)))
	}
	si, _ := feed(pkts...)
	view := Calculate(*si)

	assert.InDelta(t, 5, view.FreqDriftPct, 1e-6)
	assert.InDelta(t, 8400, view.FreqDriftHz, 1e-3)
	assert.InDelta(t, 980*0.05, view.ClockDrift, 1e-6)
}

func TestDriftSurvivesTrailingEvent(t *testing.T) {
	pkts := make([]*core.Packet, 0, 51)
	for i := 0; i < 50; i++ {
		pkts = append(pkts, pcmu(uint64(i+1), float64(i*20), uint16(i), uint32(i*168)))
	}
	ev := pcmu(51, 1000, 50, 50*168)
	ev.RTP.PayloadType = 101
	ev.RTP.PayloadTypeName = "telephone-event"
	pkts = append(pkts, ev)

	si, flags := feed(pkts...)
	view := Calculate(*si)

	assert.True(t, flags[50].Has(FlagTelephoneEvent))
	assert.Equal(t, uint32(8000), view.ClockRate)
	assert.Equal(t, uint64(50), si.Stats.SumCount)
	assert.InDelta(t, 5, view.FreqDriftPct, 1e-6)
	assert.InDelta(t, 8400, view.FreqDriftHz, 1e-3)
	assert.InDelta(t, 1000*0.05, view.ClockDrift, 1e-6)
}

func TestUnknownPayloadKeepsClockRate(t *testing.T) {
	odd := pcmu(3, 40, 3, 320)
	odd.RTP.PayloadType = 120

	si, _ := feed(pcmu(1, 0, 1, 0), pcmu(2, 20, 2, 160), odd)
	assert.Equal(t, uint32(8000), si.Stats.ClockRate)
	assert.Equal(t, uint64(2), si.Stats.SumCount)
}

func TestCalculateNeutral(t *testing.T) {
	t.Run("single packet", func(t *testing.T) {
		si, _ := feed(pcmu(1, 0, 7, 0))
		view := Calculate(*si)
		assert.Equal(t, int64(1), view.Expected)
		assert.Zero(t, view.Lost)
		assert.Zero(t, view.FreqDriftHz)
		assert.Zero(t, view.ClockDrift)
	})

	t.Run("unknown clock", func(t *testing.T) {
		a := pcmu(1, 0, 1, 0)
		a.RTP.PayloadType = 120
		b := pcmu(2, 20, 2, 160)
		b.RTP.PayloadType = 120
		si, _ := feed(a, b)
		view := Calculate(*si)
		assert.Zero(t, view.ClockRate)
		assert.Zero(t, view.FreqDriftPct)
		assert.Zero(t, si.Stats.Jitter)
	})

	t.Run("empty", func(t *testing.T) {
		view := Calculate(StreamInfo{})
		assert.Zero(t, view.Expected)
		assert.Zero(t, view.LostPct)
	})
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "None", Flags(0).String())
	assert.Equal(t, "First|Marker", (FlagFirst | FlagMarker).String())
	assert.Equal(t, "WrongSeq|TelephoneEvent", (FlagWrongSeq | FlagTelephoneEvent).String())
}
