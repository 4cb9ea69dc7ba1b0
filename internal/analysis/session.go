// Package analysis runs passes of RTP packets through a stream registry.
package analysis

import (
	"fmt"
	"io"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/metrics"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

// Hooks are notified by the session. Nil hooks are skipped.
type Hooks struct {
	Redraw func() // after each packet of an Analyse pass
	Reset  func() // before the registry is cleared
}

type Option func(*Session)

func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session owns the stream registry shared by consecutive passes. Only
// one pass is open at a time. A Session is not safe for concurrent use.
type Session struct {
	registry *rtpstream.Registry
	packets  uint64
	hooks    Hooks
	logger   log.Logger
	active   *Pass
}

func NewSession(opts ...Option) *Session {
	s := &Session{registry: rtpstream.NewRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLogger().WithField("component", "analysis")
	}
	return s
}

// Begin opens a pass. An Analyse pass starts from an empty registry;
// Save and Mark passes read the registry the last Analyse pass built.
func (s *Session) Begin(mode Mode) (*Pass, error) {
	if s.active != nil {
		return nil, fmt.Errorf("begin %s: %w", ModeName(mode), core.ErrPassActive)
	}

	p := &Pass{session: s, mode: mode}
	switch m := mode.(type) {
	case Analyse:
		s.Reset()
	case Save:
		if isZero(m.Stream) {
			return nil, fmt.Errorf("begin save: %w", core.ErrNoFilterIdentity)
		}
		info, ok := s.registry.Find(m.Stream)
		if !ok {
			return nil, fmt.Errorf("begin save %s: %w", m.Stream, core.ErrStreamNotFound)
		}
		if m.Out == nil {
			return nil, fmt.Errorf("begin save %s: nil output", m.Stream)
		}
		if err := p.openDump(info, m.Out); err != nil {
			return nil, err
		}
	case Mark:
		if isZero(m.Forward) {
			return nil, fmt.Errorf("begin mark: %w", core.ErrNoFilterIdentity)
		}
		if m.MarkPacket == nil {
			return nil, fmt.Errorf("begin mark %s: nil MarkPacket", m.Forward)
		}
	default:
		return nil, fmt.Errorf("begin: unknown mode %T", mode)
	}

	p.start()
	s.active = p
	s.logger.WithField("mode", ModeName(mode)).Debug("pass started")
	return p, nil
}

// Save opens a Save pass for stream id writing to out.
func (s *Session) Save(id rtpstream.Identity, out io.Writer) (*Pass, error) {
	return s.Begin(Save{Stream: id, Out: out})
}

// Reset runs the reset hook and discards every stream. It is safe to call
// at any time, repeatedly.
func (s *Session) Reset() {
	if s.hooks.Reset != nil {
		s.hooks.Reset()
	}
	metrics.StreamsTracked.Sub(float64(s.registry.Len()))
	s.registry.Reset()
	s.packets = 0
}

// Packets is the number of packets analysed since the last reset.
func (s *Session) Packets() uint64 {
	return s.packets
}

// Streams is the number of streams in the registry.
func (s *Session) Streams() int {
	return s.registry.Len()
}

// Snapshot returns copies of all streams in first-seen order.
func (s *Session) Snapshot() []rtpstream.StreamInfo {
	return s.registry.Snapshot()
}

// SnapshotSince returns copies of the streams after the first n.
func (s *Session) SnapshotSince(n int) []rtpstream.StreamInfo {
	return s.registry.Since(n)
}

// Find returns a copy of stream id.
func (s *Session) Find(id rtpstream.Identity) (rtpstream.StreamInfo, bool) {
	return s.registry.Find(id)
}

// FindReverse returns a copy of a stream flowing opposite to id.
func (s *Session) FindReverse(id rtpstream.Identity) (rtpstream.StreamInfo, bool) {
	return s.registry.FindReverse(id)
}

// Calculate returns the calculated view of stream id.
func (s *Session) Calculate(id rtpstream.Identity) (rtpstream.CalculatedView, error) {
	info, ok := s.registry.Find(id)
	if !ok {
		return rtpstream.CalculatedView{}, fmt.Errorf("calculate %s: %w", id, core.ErrStreamNotFound)
	}
	return rtpstream.Calculate(info), nil
}

// CalculateAll returns the calculated views of all streams in first-seen order.
func (s *Session) CalculateAll() []rtpstream.CalculatedView {
	snap := s.registry.Snapshot()
	views := make([]rtpstream.CalculatedView, 0, len(snap))
	for _, info := range snap {
		views = append(views, rtpstream.Calculate(info))
	}
	return views
}
