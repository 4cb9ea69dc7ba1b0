// Package file reads RTP packets from pcap and pcapng capture files.
package file

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/core/decoder"
	"firestige.xyz/otus-rtp/internal/filter"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/metrics"
	"firestige.xyz/otus-rtp/internal/parser/rtp"
	"firestige.xyz/otus-rtp/internal/signaling"
)

// Config describes one capture file and how to read RTP out of it.
type Config struct {
	Path          string
	DisplayFilter string // BPF expression, empty = every frame passes
	SnapLen       int
	RTP           rtp.Config
	// Signaling enables SIP/SDP correlation when non-nil.
	Signaling *signaling.Config
}

// Stats counts what the source did with the frames it read.
type Stats struct {
	Frames       uint64
	RTP          uint64
	SIP          uint64
	NotRTP       uint64
	DecodeErrors uint64
	Filtered     uint64 // RTP packets that failed the display filter
}

// Source yields the RTP packets of a capture file in frame order. Frames
// that are not RTP are consumed internally.
type Source struct {
	path       string
	handle     *pcap.Handle
	decoder    decoder.Decoder
	filter     *filter.Filter
	parser     *rtp.Parser
	correlator *signaling.Correlator

	frame uint64
	first time.Time
	stats Stats
}

// Open opens the capture file and prepares the decoding chain.
func Open(cfg Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	handle, err := pcap.OpenOffline(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", cfg.Path, err)
	}

	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65535
	}
	f, err := filter.New(cfg.DisplayFilter, handle.LinkType(), snapLen)
	if err != nil {
		handle.Close()
		return nil, err
	}

	s := &Source{
		path:    cfg.Path,
		handle:  handle,
		decoder: decoder.NewStandardDecoder(decoder.Config{LinkType: handle.LinkType()}),
		filter:  f,
	}
	var endpoints rtp.Endpoints
	if cfg.Signaling != nil {
		s.correlator = signaling.NewCorrelator(*cfg.Signaling)
		endpoints = s.correlator
	}
	s.parser = rtp.NewParser(cfg.RTP, endpoints)
	return s, nil
}

// Next returns the next RTP packet, or io.EOF at the end of the file.
func (s *Source) Next() (*core.Packet, error) {
	if s.handle == nil {
		return nil, fmt.Errorf("file source %s is closed", s.path)
	}

	for {
		data, ci, err := s.handle.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet: %w", err)
		}

		s.frame++
		s.stats.Frames++
		if s.first.IsZero() {
			s.first = ci.Timestamp
		}

		decoded, err := s.decoder.Decode(core.RawPacket{
			Frame:      s.frame,
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		})
		if err != nil {
			s.stats.DecodeErrors++
			metrics.PacketsSkippedTotal.WithLabelValues(metrics.SkipDecode).Inc()
			continue
		}

		if s.correlator != nil && s.correlator.Observe(&decoded) {
			s.stats.SIP++
			continue
		}

		if !s.parser.CanHandle(&decoded) {
			s.stats.NotRTP++
			continue
		}
		res, err := s.parser.Parse(&decoded)
		if err != nil {
			s.stats.NotRTP++
			metrics.PacketsSkippedTotal.WithLabelValues(metrics.SkipNotRTP).Inc()
			if logger := log.GetLogger(); logger.IsDebugEnabled() {
				logger.WithError(err).Debug("dropping datagram")
			}
			continue
		}

		passed := s.filter.Match(data)
		if !passed {
			s.stats.Filtered++
		}
		s.stats.RTP++

		return &core.Packet{
			Frame:               s.frame,
			Arrival:             ci.Timestamp.Sub(s.first),
			Timestamp:           ci.Timestamp,
			PassedDisplayFilter: passed,
			Src:                 decoded.Src(),
			Dst:                 decoded.Dst(),
			RTP:                 res.Header,
			Data:                decoded.Payload,
			Truncated:           decoded.Truncated,
			SetupFrame:          res.SetupFrame,
			CallID:              res.CallID,
		}, nil
	}
}

// Stats returns the counters so far.
func (s *Source) Stats() Stats {
	return s.stats
}

// Close releases the file handle.
func (s *Source) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
