// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets handled by an analysis pass, by mode
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_rtp_packets_total",
			Help: "Total number of RTP packets handled by analysis passes",
		},
		[]string{"mode"},
	)

	// PacketsSkippedTotal counts frames dropped before or during analysis, by reason
	PacketsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_rtp_packets_skipped_total",
			Help: "Total number of frames skipped by the analyser",
		},
		[]string{"reason"},
	)

	// StreamsTracked is the sum of registry sizes over all live sessions.
	// Sessions add and subtract their own streams, never set it.
	StreamsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otus_rtp_streams_tracked",
			Help: "Current number of RTP streams held by all analysis sessions",
		},
	)

	// SequenceErrorsTotal counts lost, late and duplicate packets
	SequenceErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_rtp_sequence_errors_total",
			Help: "Total number of packets with a sequence error",
		},
	)

	// ProblemStreamsTotal counts streams that turned problematic
	ProblemStreamsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_rtp_problem_streams_total",
			Help: "Total number of streams flagged with a problem",
		},
	)

	// DumpSamplesTotal counts samples written to rtpdump exports
	DumpSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_rtp_dump_samples_total",
			Help: "Total number of samples written to rtpdump exports",
		},
	)

	// DumpErrorsTotal counts failed rtpdump writes
	DumpErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_rtp_dump_errors_total",
			Help: "Total number of failed rtpdump writes",
		},
	)

	// PassDurationSeconds measures the wall time of analysis passes
	PassDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otus_rtp_pass_duration_seconds",
			Help:    "Duration of analysis passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		},
		[]string{"mode"},
	)

	// SignalingSessionsTotal counts media sessions learned from SIP/SDP
	SignalingSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otus_rtp_signaling_sessions_total",
			Help: "Total number of media sessions learned from signaling",
		},
	)

	// UploadsTotal counts export uploads by result
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otus_rtp_uploads_total",
			Help: "Total number of export uploads",
		},
		[]string{"result"},
	)
)

// Skip reasons used with PacketsSkippedTotal
const (
	SkipFiltered  = "filtered"
	SkipMalformed = "malformed"
	SkipNotRTP    = "not_rtp"
	SkipTruncated = "truncated"
	SkipDecode    = "decode"
)
