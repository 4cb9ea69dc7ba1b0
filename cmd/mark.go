package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/otus-rtp/internal/analysis"
	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "List the frames of a stream and its reverse direction",
	Long: `Mark analyses a capture, then prints the frame number of every packet
belonging to the selected stream and, when given or found, its reverse
direction.

Examples:
  otus-rtp mark -r call.pcap --stream "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD"
  otus-rtp mark -r call.pcap --stream "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD" --both`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMark(cmd.Context(), globalConfig, markOpts, os.Stdout); err != nil {
			exitWithError("mark failed", err)
		}
	},
}

type markOptions struct {
	file    string
	stream  streamFlag
	reverse streamFlag
	both    bool
}

var markOpts markOptions

func init() {
	markCmd.Flags().StringVarP(&markOpts.file, "read", "r", "", "capture file to read (required)")
	markCmd.Flags().Var(&markOpts.stream, "stream", "forward stream: src:port>dst:port/0xSSRC (required)")
	markCmd.Flags().Var(&markOpts.reverse, "reverse", "reverse stream: src:port>dst:port/0xSSRC")
	markCmd.Flags().BoolVar(&markOpts.both, "both", false, "also mark the reverse stream found in the capture")
	markCmd.MarkFlagRequired("read")
	markCmd.MarkFlagRequired("stream")
}

func runMark(ctx context.Context, cfg *config.GlobalConfig, opts markOptions, out io.Writer) error {
	if !opts.stream.set {
		return fmt.Errorf("--stream: %w", core.ErrNoFilterIdentity)
	}

	session, err := analyseFile(ctx, cfg, opts.file, "", false)
	if err != nil {
		return err
	}

	mode := analysis.Mark{Forward: opts.stream.id}
	if _, ok := session.Find(mode.Forward); !ok {
		return fmt.Errorf("stream %s: %w", mode.Forward, core.ErrStreamNotFound)
	}
	switch {
	case opts.reverse.set:
		mode.Reverse = opts.reverse.id
	case opts.both:
		if rev, ok := session.FindReverse(mode.Forward); ok {
			mode.Reverse = rev.ID
		}
	}

	var frames []uint64
	mode.MarkPacket = func(frame uint64) { frames = append(frames, frame) }
	if err := replayFile(ctx, session, mode, fileConfig(cfg, opts.file, "")); err != nil {
		return err
	}

	printStreamHeader(out, "forward", mode.Forward)
	if mode.Reverse != (rtpstream.Identity{}) {
		printStreamHeader(out, "reverse", mode.Reverse)
	}
	for _, f := range frames {
		fmt.Fprintln(out, f)
	}
	return nil
}

func printStreamHeader(out io.Writer, dir string, id rtpstream.Identity) {
	fmt.Fprintf(out, "# %s %s\n", dir, id)
}
