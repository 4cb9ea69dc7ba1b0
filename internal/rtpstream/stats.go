package rtpstream

import (
	"math"
	"strings"
	"time"

	"firestige.xyz/otus-rtp/internal/core"
)

// State is the lifecycle of a StreamStats.
type State uint8

const (
	StateEmpty    State = iota // no packet folded yet
	StateTracking              // first packet seen, deltas are meaningful
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "empty"
}

// Flags describe the last packet folded into a StreamStats.
type Flags uint16

const (
	FlagFirst Flags = 1 << iota
	FlagMarker
	FlagWrongSeq
	FlagPTChange
	FlagComfortNoise
	FlagFollowsComfortNoise
	FlagRegularPTChange
	FlagWrongTimestamp
	FlagTelephoneEvent
)

// ineligible packets are left out of max delta and jitter aggregates.
const ineligible = FlagFirst | FlagMarker | FlagComfortNoise | FlagFollowsComfortNoise | FlagWrongTimestamp

var flagNames = []string{
	"First", "Marker", "WrongSeq", "PTChange", "ComfortNoise",
	"FollowsComfortNoise", "RegularPTChange", "WrongTimestamp", "TelephoneEvent",
}

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// StreamStats is the running state of one stream. Times are milliseconds
// since capture start.
type StreamStats struct {
	State State
	Flags Flags

	// sequence
	SeqNum    uint16 // highest in-order sequence
	StartSeq  uint16
	StopSeq   uint16 // last received sequence
	Cycles    uint32
	InWrap    bool
	SeqErrors uint32

	// timestamps
	FirstTimestamp uint32
	LastTimestamp  uint32
	DeltaTimestamp uint32
	LastNominal    float64
	StartTime      float64
	LastTime       float64

	// timing
	Diff       float64
	Delta      float64
	Jitter     float64
	MaxJitter  float64
	MeanJitter float64
	Skew       float64
	MaxSkew    float64

	MaxDelta      float64
	MaxDeltaFrame uint64

	// drift regression samples: t = arrival, TS = nominal media time
	SumT     float64
	SumTS    float64
	SumTT    float64
	SumTTS   float64
	SumCount uint64

	PayloadType        uint8 // previous packet
	RegularPayloadType uint8 // previous non comfort-noise packet
	ClockRate          uint32
	LastPayloadLen     uint32
	Total              uint64
	Bandwidth          float64 // kbps over the last second

	window bandwidthWindow
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Update folds one packet into the stats and returns its flags.
func (s *StreamStats) Update(arrival time.Duration, frame uint64, h *core.RTPHeader, ipv6 bool) Flags {
	now := toMillis(arrival)
	if s.State == StateEmpty {
		s.first(now, h, ipv6)
		return s.Flags
	}

	s.Flags = 0
	s.sequence(h.Seq)
	rate := s.payloadType(h)
	s.timing(now, h.Timestamp, rate)
	s.addBandwidth(now, h, ipv6)

	if h.Marker {
		if h.Timestamp > s.LastTimestamp {
			s.Flags |= FlagMarker
		} else {
			s.Flags |= FlagWrongTimestamp
		}
	}
	s.DeltaTimestamp = h.Timestamp - s.LastTimestamp

	if s.Flags&ineligible == 0 {
		if s.Delta > s.MaxDelta {
			s.MaxDelta = s.Delta
			s.MaxDeltaFrame = frame
		}
		if rate != 0 {
			if s.Jitter > s.MaxJitter {
				s.MaxJitter = s.Jitter
			}
			s.MeanJitter = (s.MeanJitter*float64(s.Total) + s.Diff) / float64(s.Total+1)
		}
	}

	s.LastTime = now
	s.LastTimestamp = h.Timestamp
	s.StopSeq = h.Seq
	s.Total++
	s.LastPayloadLen = h.PayloadLen - h.PaddingLen
	return s.Flags
}

func (s *StreamStats) first(now float64, h *core.RTPHeader, ipv6 bool) {
	s.State = StateTracking
	s.Flags = FlagFirst
	if h.Marker {
		s.Flags |= FlagMarker
	}
	if IsComfortNoise(h.PayloadType) {
		s.Flags |= FlagComfortNoise
	}

	s.SeqNum = h.Seq
	s.StartSeq = h.Seq
	s.StopSeq = h.Seq
	s.FirstTimestamp = h.Timestamp
	s.LastTimestamp = h.Timestamp
	s.StartTime = now
	s.LastTime = now
	s.PayloadType = h.PayloadType
	s.RegularPayloadType = h.PayloadType

	rate, event := ClockRate(h.PayloadType, h.PayloadTypeName, h.PayloadRate)
	if event {
		s.Flags |= FlagTelephoneEvent
	}
	if rate != 0 {
		s.ClockRate = rate
		// the first packet is the (0, 0) regression sample
		s.SumCount = 1
	}

	s.addBandwidth(now, h, ipv6)
	s.Total = 1
	s.LastPayloadLen = h.PayloadLen - h.PaddingLen
}

// sequence tracks wrap cycles relative to the start sequence and
// classifies the packet as in order, after a gap, or late/duplicate.
// The wrap detection is a heuristic: a burst of loss spanning the wrap
// point is still counted as one cycle.
func (s *StreamStats) sequence(seq uint16) {
	switch {
	case seq < s.StartSeq && !s.InWrap:
		s.Cycles++
		s.InWrap = true
	case seq == 0 && s.StopSeq == math.MaxUint16 && !s.InWrap:
		s.Cycles++
		s.InWrap = true
	case seq > s.StartSeq && s.InWrap:
		s.InWrap = false
	}

	last, cur := int(s.SeqNum), int(seq)
	switch {
	case last+1 == cur:
		s.SeqNum = seq
	case last == math.MaxUint16 && cur == 0:
		s.SeqNum = seq
	case last+1 < cur || last-cur > 0xFF00:
		s.SeqNum = seq
		s.SeqErrors++
		s.Flags |= FlagWrongSeq
	default:
		// late or duplicate
		s.SeqErrors++
		s.Flags |= FlagWrongSeq
	}
}

// payloadType updates the payload flags and returns the media clock rate
// of this packet, 0 for events and unknown types. ClockRate keeps the last
// known rate so a trailing event does not erase it.
func (s *StreamStats) payloadType(h *core.RTPHeader) uint32 {
	pt := h.PayloadType
	cn := IsComfortNoise(pt)
	if cn {
		s.Flags |= FlagComfortNoise
	}
	if IsComfortNoise(s.PayloadType) {
		s.Flags |= FlagFollowsComfortNoise
	}
	if pt != s.PayloadType {
		s.Flags |= FlagPTChange
	}
	if !cn && pt != s.RegularPayloadType {
		s.Flags |= FlagRegularPTChange
	}
	s.PayloadType = pt
	if !cn {
		s.RegularPayloadType = pt
	}

	rate, event := ClockRate(pt, h.PayloadTypeName, h.PayloadRate)
	if event {
		s.Flags |= FlagTelephoneEvent
	}
	if rate != 0 {
		s.ClockRate = rate
	}
	return rate
}

// timing folds arrival time against the RTP clock. Packets without a media
// clock only update the arrival delta.
func (s *StreamStats) timing(now float64, ts uint32, rate uint32) {
	s.Delta = now - s.LastTime
	if rate == 0 {
		return
	}

	nominal := float64(ts-s.FirstTimestamp) * 1000 / float64(rate)
	expected := s.LastTime + (nominal - s.LastNominal)
	s.Diff = math.Abs(now - expected)
	s.Jitter = (15*s.Jitter + s.Diff) / 16

	elapsed := now - s.StartTime
	s.Skew = nominal - elapsed
	if math.Abs(s.Skew) > math.Abs(s.MaxSkew) {
		s.MaxSkew = s.Skew
	}

	s.SumT += elapsed
	s.SumTS += nominal
	s.SumTT += elapsed * elapsed
	s.SumTTS += elapsed * nominal
	s.SumCount++

	s.LastNominal = nominal
}

func (s *StreamStats) addBandwidth(now float64, h *core.RTPHeader, ipv6 bool) {
	overhead := uint32(ipv4UDPOverhead)
	if ipv6 {
		overhead = ipv6UDPOverhead
	}
	s.window.add(now, h.DataLen+overhead)
	s.Bandwidth = s.window.kbps()
}

// ExtendedStopSeq is the last received sequence widened by the wrap cycles.
func (s *StreamStats) ExtendedStopSeq() uint64 {
	return uint64(s.Cycles)<<16 | uint64(s.StopSeq)
}

// WindowBytes returns the bytes currently held in the bandwidth window.
func (s *StreamStats) WindowBytes() uint64 {
	return s.window.total
}

// WindowSamples returns the number of samples in the bandwidth window.
func (s *StreamStats) WindowSamples() int {
	return s.window.count
}
