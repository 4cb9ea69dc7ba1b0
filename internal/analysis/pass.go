package analysis

import (
	"fmt"
	"io"
	"time"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/metrics"
	"firestige.xyz/otus-rtp/internal/rtpdump"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

// Pass is one run over a packet sequence in a fixed mode.
type Pass struct {
	session *Session
	mode    Mode
	started time.Time
	packets uint64
	closed  bool
	err     error // sticky, set by failed dump writes

	dump     *rtpdump.Writer
	dumpInfo rtpstream.StreamInfo
}

func (p *Pass) start() {
	p.started = time.Now()
}

func (p *Pass) openDump(info rtpstream.StreamInfo, out io.Writer) error {
	p.dump = rtpdump.NewWriter(out)
	p.dumpInfo = info
	if err := p.dump.WriteHeader(info); err != nil {
		metrics.DumpErrorsTotal.Inc()
		return fmt.Errorf("begin save: %w", err)
	}
	return nil
}

// Mode returns the pass mode.
func (p *Pass) Mode() Mode {
	return p.mode
}

// Packets is the number of packets this pass acted on: analysed, saved
// or marked.
func (p *Pass) Packets() uint64 {
	return p.packets
}

// Err returns the error that failed the pass, if any.
func (p *Pass) Err() error {
	return p.err
}

// Analyze handles one packet. Malformed packets return an error wrapping
// core.ErrMalformedPacket and leave the pass usable. A failed dump write
// fails the pass: the same error is returned for every later packet.
func (p *Pass) Analyze(pkt *core.Packet) error {
	if p.closed {
		return core.ErrPassClosed
	}
	if p.err != nil {
		return p.err
	}
	if err := pkt.Validate(); err != nil {
		metrics.PacketsSkippedTotal.WithLabelValues(metrics.SkipMalformed).Inc()
		return err
	}

	switch m := p.mode.(type) {
	case Analyse:
		p.analyse(m, pkt)
	case Save:
		return p.save(pkt)
	case Mark:
		p.mark(m, pkt)
	}
	return nil
}

func (p *Pass) analyse(m Analyse, pkt *core.Packet) {
	if m.ApplyDisplayFilter && !pkt.PassedDisplayFilter {
		metrics.PacketsSkippedTotal.WithLabelValues(metrics.SkipFiltered).Inc()
		return
	}

	s := p.session
	id := rtpstream.IdentityOf(pkt)
	info := s.registry.Lookup(id)
	if info == nil {
		info = rtpstream.NewStreamInfo(pkt)
		s.registry.Insert(info)
		metrics.StreamsTracked.Inc()
		if s.logger.IsDebugEnabled() {
			s.logger.WithField("stream", id.String()).WithField("frame", pkt.Frame).Debug("new stream")
		}
	}

	hadProblem := info.Problem
	flags := info.Update(pkt)
	if flags.Has(rtpstream.FlagWrongSeq) {
		metrics.SequenceErrorsTotal.Inc()
	}
	if info.Problem && !hadProblem {
		metrics.ProblemStreamsTotal.Inc()
	}

	s.packets++
	p.packets++
	metrics.PacketsTotal.WithLabelValues(ModeName(m)).Inc()

	if s.hooks.Redraw != nil {
		s.hooks.Redraw()
	}
}

func (p *Pass) save(pkt *core.Packet) error {
	if !rtpstream.IdentityOf(pkt).Equal(p.dumpInfo.ID) {
		return nil
	}
	if pkt.Truncated {
		metrics.PacketsSkippedTotal.WithLabelValues(metrics.SkipTruncated).Inc()
		p.session.logger.WithField("frame", pkt.Frame).Debug("truncated packet not saved")
		return nil
	}

	var offset uint32
	if d := pkt.Timestamp.Sub(p.dumpInfo.StartAbsTime); d > 0 {
		offset = uint32(d / time.Millisecond)
	}
	if err := p.dump.WriteSample(rtpdump.Sample{Offset: offset, Data: pkt.Data}); err != nil {
		metrics.DumpErrorsTotal.Inc()
		p.err = fmt.Errorf("frame %d: %w", pkt.Frame, err)
		return p.err
	}

	p.packets++
	metrics.PacketsTotal.WithLabelValues(ModeName(p.mode)).Inc()
	metrics.DumpSamplesTotal.Inc()
	return nil
}

func (p *Pass) mark(m Mark, pkt *core.Packet) {
	id := rtpstream.IdentityOf(pkt)
	if !id.Equal(m.Forward) && (isZero(m.Reverse) || !id.Equal(m.Reverse)) {
		return
	}
	m.MarkPacket(pkt.Frame)
	p.packets++
	metrics.PacketsTotal.WithLabelValues(ModeName(m)).Inc()
}

// End closes the pass and returns the error that failed it, if any.
// Ending twice is a no-op.
func (p *Pass) End() error {
	if p.closed {
		return p.err
	}
	p.closed = true
	if p.session.active == p {
		p.session.active = nil
	}

	elapsed := time.Since(p.started)
	metrics.PassDurationSeconds.WithLabelValues(ModeName(p.mode)).Observe(elapsed.Seconds())
	p.session.logger.WithFields(map[string]interface{}{
		"mode":    ModeName(p.mode),
		"packets": p.packets,
		"streams": p.session.registry.Len(),
		"elapsed": elapsed.String(),
	}).Debug("pass ended")
	return p.err
}
