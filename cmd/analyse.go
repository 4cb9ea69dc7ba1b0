package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/report"
)

var analyseCmd = &cobra.Command{
	Use:     "analyse",
	Aliases: []string{"analyze"},
	Short:   "Analyse the RTP streams of a capture file",
	Long: `Analyse reads a pcap or pcapng file, groups RTP packets into streams and
prints per-stream statistics.

With --display-filter only packets matching the BPF expression contribute
to the statistics.

Examples:
  otus-rtp analyse -r call.pcap
  otus-rtp analyse -r call.pcap --display-filter "udp port 40000" --format json`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAnalyse(cmd.Context(), globalConfig, analyseOpts, os.Stdout); err != nil {
			exitWithError("analyse failed", err)
		}
	},
}

type analyseOptions struct {
	file          string
	displayFilter string
	format        string
}

var analyseOpts analyseOptions

func init() {
	analyseCmd.Flags().StringVarP(&analyseOpts.file, "read", "r", "", "capture file to read (required)")
	analyseCmd.Flags().StringVarP(&analyseOpts.displayFilter, "display-filter", "Y", "",
		"BPF expression; only matching packets are analysed")
	analyseCmd.Flags().StringVar(&analyseOpts.format, "format", "table", "output format: table, json or yaml")
	analyseCmd.MarkFlagRequired("read")
}

func runAnalyse(ctx context.Context, cfg *config.GlobalConfig, opts analyseOptions, out io.Writer) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	filter, apply := cfg.Analysis.DisplayFilter, cfg.Analysis.ApplyDisplayFilter
	if opts.displayFilter != "" {
		filter, apply = opts.displayFilter, true
	}

	session, err := analyseFile(ctx, cfg, opts.file, filter, apply)
	if err != nil {
		return err
	}
	return report.Streams(out, format, session.CalculateAll())
}
