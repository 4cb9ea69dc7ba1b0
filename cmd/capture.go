package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"firestige.xyz/otus-rtp/internal/analysis"
	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/parser/rtp"
	"firestige.xyz/otus-rtp/internal/rtpstream"
	"firestige.xyz/otus-rtp/internal/signaling"
	"firestige.xyz/otus-rtp/internal/source/file"
)

// streamFlag is a --stream style flag holding a stream identity in the
// form src:port>dst:port/0xSSRC.
type streamFlag struct {
	id  rtpstream.Identity
	set bool
}

var _ pflag.Value = (*streamFlag)(nil)

func (f *streamFlag) String() string {
	if !f.set {
		return ""
	}
	return f.id.String()
}

func (f *streamFlag) Set(s string) error {
	id, err := rtpstream.ParseIdentity(s)
	if err != nil {
		return err
	}
	f.id, f.set = id, true
	return nil
}

func (f *streamFlag) Type() string {
	return "stream"
}

// fileConfig describes how to read a capture under cfg.
func fileConfig(cfg *config.GlobalConfig, path, displayFilter string) file.Config {
	lo, hi, _ := cfg.Analysis.PortRange()
	fc := file.Config{
		Path:          path,
		DisplayFilter: displayFilter,
		SnapLen:       cfg.Analysis.SnapLen,
		RTP: rtp.Config{
			Heuristic: cfg.Analysis.HeuristicRTP,
			PortLo:    lo,
			PortHi:    hi,
		},
	}
	if cfg.Signaling.Enabled {
		ports := make([]uint16, 0, len(cfg.Signaling.SIPPorts))
		for _, p := range cfg.Signaling.SIPPorts {
			ports = append(ports, uint16(p))
		}
		fc.Signaling = &signaling.Config{Ports: ports, SessionTTL: cfg.Signaling.SessionTimeout}
	}
	return fc
}

// replayFile runs one pass of session over the capture described by fc.
// Every pass reads the file from the start.
func replayFile(ctx context.Context, session *analysis.Session, mode analysis.Mode, fc file.Config) error {
	src, err := file.Open(fc)
	if err != nil {
		return err
	}
	defer src.Close()

	pass, err := session.Begin(mode)
	if err != nil {
		return err
	}
	stats, err := analysis.Replay(ctx, src, pass)
	endErr := pass.End()

	fs := src.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"mode":          analysis.ModeName(mode),
		"frames":        fs.Frames,
		"rtp":           fs.RTP,
		"sip":           fs.SIP,
		"not_rtp":       fs.NotRTP,
		"decode_errors": fs.DecodeErrors,
		"malformed":     stats.Malformed,
		"streams":       session.Streams(),
	}).Info("pass finished")

	if err != nil {
		return fmt.Errorf("%s pass over %s: %w", analysis.ModeName(mode), fc.Path, err)
	}
	return endErr
}

// analyseFile builds the stream registry of a capture.
func analyseFile(ctx context.Context, cfg *config.GlobalConfig, path, displayFilter string, apply bool) (*analysis.Session, error) {
	session := analysis.NewSession()
	mode := analysis.Analyse{ApplyDisplayFilter: apply}
	if err := replayFile(ctx, session, mode, fileConfig(cfg, path, displayFilter)); err != nil {
		return nil, err
	}
	return session, nil
}
