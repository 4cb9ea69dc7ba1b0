package analysis

import (
	"context"
	"errors"
	"io"

	"firestige.xyz/otus-rtp/internal/core"
)

// Source yields packets in capture order and io.EOF at the end.
type Source interface {
	Next() (*core.Packet, error)
}

// ReplayStats summarises one replay.
type ReplayStats struct {
	Packets   uint64 // packets read from the source
	Malformed uint64 // packets the pass rejected and skipped
}

// Replay feeds every packet of src into pass until src is exhausted, ctx
// is cancelled or the pass fails. It does not end the pass.
func Replay(ctx context.Context, src Source, pass *Pass) (ReplayStats, error) {
	var stats ReplayStats
	logger := pass.session.logger

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		pkt, err := src.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		stats.Packets++

		if err := pass.Analyze(pkt); err != nil {
			if errors.Is(err, core.ErrMalformedPacket) {
				stats.Malformed++
				if logger.IsDebugEnabled() {
					logger.WithError(err).Debug("skipping packet")
				}
				continue
			}
			return stats, err
		}
	}
}
