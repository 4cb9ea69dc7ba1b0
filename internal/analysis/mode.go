package analysis

import (
	"io"

	"firestige.xyz/otus-rtp/internal/rtpstream"
)

// Mode selects what a pass does with each packet. It is one of Analyse,
// Save or Mark.
type Mode interface {
	name() string
}

// Analyse builds the stream registry and statistics.
type Analyse struct {
	// ApplyDisplayFilter skips packets that failed the display filter.
	ApplyDisplayFilter bool
}

// Save exports the packets of one stream in rtpdump format. The stream
// must be known from a previous Analyse pass.
type Save struct {
	Stream rtpstream.Identity
	Out    io.Writer
}

// Mark reports the frames of a stream and optionally its reverse
// direction.
type Mark struct {
	Forward    rtpstream.Identity
	Reverse    rtpstream.Identity // zero value: forward only
	MarkPacket func(frame uint64)
}

func (Analyse) name() string { return "analyse" }
func (Save) name() string    { return "save" }
func (Mark) name() string    { return "mark" }

// ModeName returns the label of m used in logs and metrics.
func ModeName(m Mode) string {
	if m == nil {
		return "none"
	}
	return m.name()
}

func isZero(id rtpstream.Identity) bool {
	return !id.Src.IsValid() || !id.Dst.IsValid()
}
