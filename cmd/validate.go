package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate loads the configuration file given with --config, applies
defaults and environment overrides, and reports whether it is usable.

Examples:
  otus-rtp validate -c /etc/otus-rtp/config.yml
  RTP_ANALYSIS_LOG_LEVEL=debug otus-rtp validate -c config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, logLevel, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path, level string, out io.Writer) error {
	cfg, err := loadConfig(path, level)
	if err != nil {
		return err
	}

	name := path
	if name == "" {
		name = "(defaults)"
	}
	fmt.Fprintf(out, "VALID: %s\n", name)
	fmt.Fprintf(out, "  log:       level=%s format=%s file=%t\n", cfg.Log.Level, cfg.Log.Format, cfg.Log.Outputs.File.Enabled)
	fmt.Fprintf(out, "  analysis:  heuristic=%t rtp_ports=%v display_filter=%q\n",
		cfg.Analysis.HeuristicRTP, cfg.Analysis.RTPPorts, cfg.Analysis.DisplayFilter)
	fmt.Fprintf(out, "  signaling: enabled=%t sip_ports=%v ttl=%s\n",
		cfg.Signaling.Enabled, cfg.Signaling.SIPPorts, cfg.Signaling.SessionTimeout)
	fmt.Fprintf(out, "  export:    dir=%s s3=%t\n", cfg.Export.Dir, cfg.Export.S3.Enabled)
	fmt.Fprintf(out, "  metrics:   enabled=%t listen=%s\n", cfg.Metrics.Enabled, cfg.Metrics.Listen)
	return nil
}
