package rtpstream

import (
	"sort"
	"time"

	"firestige.xyz/otus-rtp/internal/core"
)

// StreamInfo is everything known about one stream in the current pass.
type StreamInfo struct {
	ID Identity

	FirstPayloadType     uint8
	FirstPayloadTypeName string
	PayloadTypeNames     []string // sorted, unique

	StartFrame   uint64
	StopFrame    uint64
	StartTime    time.Duration // since capture start
	StopTime     time.Duration
	StartAbsTime time.Time

	Packets uint64
	// Problem is set once any packet shows a sequence or timestamp error.
	Problem bool

	// Signaling back-reference, zero when the stream was not negotiated
	// in the capture.
	SetupFrame uint64
	CallID     string

	Stats StreamStats
}

// NewStreamInfo creates the info of the stream pkt opens. The stats stay
// empty until Update.
func NewStreamInfo(pkt *core.Packet) *StreamInfo {
	return &StreamInfo{
		ID:                   IdentityOf(pkt),
		FirstPayloadType:     pkt.RTP.PayloadType,
		FirstPayloadTypeName: PayloadTypeName(pkt.RTP.PayloadType, pkt.RTP.PayloadTypeName),
		StartFrame:           pkt.Frame,
		StartTime:            pkt.Arrival,
		StartAbsTime:         pkt.Timestamp,
		SetupFrame:           pkt.SetupFrame,
		CallID:               pkt.CallID,
	}
}

// Update folds pkt into the stream and returns the packet flags.
func (si *StreamInfo) Update(pkt *core.Packet) Flags {
	flags := si.Stats.Update(pkt.Arrival, pkt.Frame, pkt.RTP, pkt.IsIPv6())
	if flags&(FlagWrongSeq|FlagWrongTimestamp) != 0 {
		si.Problem = true
	}

	si.Packets++
	si.StopFrame = pkt.Frame
	si.StopTime = pkt.Arrival
	si.addPayloadName(PayloadTypeName(pkt.RTP.PayloadType, pkt.RTP.PayloadTypeName))

	if si.SetupFrame == 0 && pkt.SetupFrame != 0 {
		si.SetupFrame = pkt.SetupFrame
		si.CallID = pkt.CallID
	}
	return flags
}

func (si *StreamInfo) addPayloadName(name string) {
	i := sort.SearchStrings(si.PayloadTypeNames, name)
	if i < len(si.PayloadTypeNames) && si.PayloadTypeNames[i] == name {
		return
	}
	si.PayloadTypeNames = append(si.PayloadTypeNames, "")
	copy(si.PayloadTypeNames[i+1:], si.PayloadTypeNames[i:])
	si.PayloadTypeNames[i] = name
}

// Duration is the time between the first and last packet.
func (si *StreamInfo) Duration() time.Duration {
	return si.StopTime - si.StartTime
}

// Clone returns a deep copy.
func (si *StreamInfo) Clone() StreamInfo {
	c := *si
	c.PayloadTypeNames = append([]string(nil), si.PayloadTypeNames...)
	return c
}
