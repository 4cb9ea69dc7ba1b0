// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/metrics"
)

var (
	// Global flags
	configFile string
	logLevel   string

	globalConfig  *config.GlobalConfig
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "otus-rtp",
	Short: "otus-rtp - RTP stream correlation and QoS analysis",
	Long: `otus-rtp reads packet captures, groups RTP packets into streams and
reports per-stream quality figures: loss, sequence errors, jitter, skew,
bandwidth and clock drift.

Streams can be exported in rtpdump format for playback tools, locally or
to S3, and the frames of a stream pair can be listed for marking.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (debug/info/warn/error)")

	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads configuration, initialises logging and starts the metrics
// endpoint. validate reports configuration errors itself.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "validate" {
		return nil
	}

	cfg, err := loadConfig(configFile, logLevel)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	globalConfig = cfg

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsServer.Start(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if metricsServer != nil {
		if err := metricsServer.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("failed to stop metrics server")
		}
		metricsServer = nil
	}
}

// loadConfig loads path and applies the --log-level override.
func loadConfig(path, level string) (*config.GlobalConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
