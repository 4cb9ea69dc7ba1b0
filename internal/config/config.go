// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/otus-rtp/internal/core"
)

// GlobalConfig is the top-level configuration.
// Maps to the `rtp-analysis:` root key in YAML.
type GlobalConfig struct {
	Log       LogConfig       `mapstructure:"log"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Export    ExportConfig    `mapstructure:"export"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ─── Analysis ───

// AnalysisConfig controls how captured frames become RTP packets.
type AnalysisConfig struct {
	ApplyDisplayFilter bool   `mapstructure:"apply_display_filter"`
	DisplayFilter      string `mapstructure:"display_filter"` // BPF expression
	HeuristicRTP       bool   `mapstructure:"heuristic_rtp"`
	RTPPorts           []int  `mapstructure:"rtp_ports"` // [lo, hi], empty = any UDP port
	SnapLen            int    `mapstructure:"snap_len"`
}

// PortRange returns the configured RTP port range; ok is false when unset.
func (a AnalysisConfig) PortRange() (lo, hi uint16, ok bool) {
	if len(a.RTPPorts) != 2 {
		return 0, 0, false
	}
	return uint16(a.RTPPorts[0]), uint16(a.RTPPorts[1]), true
}

// ─── Signaling ───

// SignalingConfig controls SIP/SDP correlation.
type SignalingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SIPPorts   []int  `mapstructure:"sip_ports"`
	SessionTTL string `mapstructure:"session_ttl"` // e.g. "10m"

	// SessionTimeout is SessionTTL parsed by ValidateAndApplyDefaults.
	SessionTimeout time.Duration `mapstructure:"-"`
}

// ─── Export ───

// ExportConfig controls where saved streams are written.
type ExportConfig struct {
	Dir string   `mapstructure:"dir"`
	S3  S3Config `mapstructure:"s3"`
}

// S3Config configures uploading exported dumps.
type S3Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Region      string `mapstructure:"region"`
	URIPrefix   string `mapstructure:"uri_prefix"` // s3://bucket/prefix
	DeleteLocal bool   `mapstructure:"delete_local"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`  // debug / info / warn / error
	Format     string           `mapstructure:"format"` // json / text
	Pattern    string           `mapstructure:"pattern"`
	TimeFormat string           `mapstructure:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides the console.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

const rootKey = "rtp-analysis"

// configRoot is the top-level wrapper matching the YAML structure `rtp-analysis: ...`.
type configRoot struct {
	RTPAnalysis GlobalConfig `mapstructure:"rtp-analysis"`
}

// Load loads configuration from file. An empty path yields defaults plus
// environment overrides (e.g. RTP_ANALYSIS_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "rtp-analysis.log.level" maps to env "RTP_ANALYSIS_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.RTPAnalysis

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	key := func(k string) string { return rootKey + "." + k }

	// Log defaults
	v.SetDefault(key("log.level"), "info")
	v.SetDefault(key("log.format"), "text")
	v.SetDefault(key("log.pattern"), "%time [%level] %field %msg\n")
	v.SetDefault(key("log.time_format"), "2006-01-02 15:04:05.000")
	v.SetDefault(key("log.outputs.file.enabled"), false)
	v.SetDefault(key("log.outputs.file.path"), "/var/log/otus-rtp/otus-rtp.log")
	v.SetDefault(key("log.outputs.file.rotation.max_size_mb"), 100)
	v.SetDefault(key("log.outputs.file.rotation.max_age_days"), 30)
	v.SetDefault(key("log.outputs.file.rotation.max_backups"), 5)
	v.SetDefault(key("log.outputs.file.rotation.compress"), true)

	// Analysis defaults
	v.SetDefault(key("analysis.apply_display_filter"), false)
	v.SetDefault(key("analysis.display_filter"), "")
	v.SetDefault(key("analysis.heuristic_rtp"), true)
	v.SetDefault(key("analysis.rtp_ports"), []int{})
	v.SetDefault(key("analysis.snap_len"), 65535)

	// Signaling defaults
	v.SetDefault(key("signaling.enabled"), true)
	v.SetDefault(key("signaling.sip_ports"), []int{5060})
	v.SetDefault(key("signaling.session_ttl"), "10m")

	// Export defaults
	v.SetDefault(key("export.dir"), ".")
	v.SetDefault(key("export.s3.enabled"), false)
	v.SetDefault(key("export.s3.region"), "us-east-1")
	v.SetDefault(key("export.s3.uri_prefix"), "")
	v.SetDefault(key("export.s3.delete_local"), false)

	// Metrics defaults
	v.SetDefault(key("metrics.enabled"), false)
	v.SetDefault(key("metrics.listen"), ":9091")
	v.SetDefault(key("metrics.path"), "/metrics")
}

// ValidateAndApplyDefaults validates configuration and resolves derived fields.
// Every error wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Analysis ──
	if cfg.Analysis.ApplyDisplayFilter && cfg.Analysis.DisplayFilter == "" {
		return invalid("analysis.display_filter is required when apply_display_filter=true")
	}
	if n := len(cfg.Analysis.RTPPorts); n != 0 {
		if n != 2 {
			return invalid("analysis.rtp_ports must be [lo, hi], got %d values", n)
		}
		lo, hi := cfg.Analysis.RTPPorts[0], cfg.Analysis.RTPPorts[1]
		if !validPort(lo) || !validPort(hi) || lo > hi {
			return invalid("analysis.rtp_ports: bad range [%d, %d]", lo, hi)
		}
	}
	if cfg.Analysis.SnapLen <= 0 {
		cfg.Analysis.SnapLen = 65535
	}

	// ── Signaling ──
	for _, p := range cfg.Signaling.SIPPorts {
		if !validPort(p) {
			return invalid("signaling.sip_ports: bad port %d", p)
		}
	}
	if cfg.Signaling.SessionTTL == "" {
		cfg.Signaling.SessionTTL = "10m"
	}
	ttl, err := time.ParseDuration(cfg.Signaling.SessionTTL)
	if err != nil || ttl <= 0 {
		return invalid("signaling.session_ttl: bad duration %q", cfg.Signaling.SessionTTL)
	}
	cfg.Signaling.SessionTimeout = ttl

	// ── Export ──
	if cfg.Export.S3.Enabled {
		if !strings.HasPrefix(cfg.Export.S3.URIPrefix, "s3://") {
			return invalid("export.s3.uri_prefix must start with s3:// when export.s3.enabled=true")
		}
		if cfg.Export.S3.Region == "" {
			return invalid("export.s3.region is required when export.s3.enabled=true")
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return invalid("metrics.listen is required when metrics.enabled=true")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return invalid("metrics.path must start with '/': %q", cfg.Metrics.Path)
		}
	}

	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
