package rtpstream

// CalculatedView is the presentation summary of one stream. Times are
// milliseconds.
type CalculatedView struct {
	Stream       string   `json:"stream" yaml:"stream"`
	Source       string   `json:"source" yaml:"source"`
	Destination  string   `json:"destination" yaml:"destination"`
	SSRC         uint32   `json:"ssrc" yaml:"ssrc"`
	PayloadNames []string `json:"payloads" yaml:"payloads"`

	Packets    uint64  `json:"packets" yaml:"packets"`
	Expected   int64   `json:"expected" yaml:"expected"`
	Lost       int64   `json:"lost" yaml:"lost"`
	LostPct    float64 `json:"lost_pct" yaml:"lost_pct"`
	SeqErrors  uint32  `json:"seq_errors" yaml:"seq_errors"`
	StartFrame uint64  `json:"start_frame" yaml:"start_frame"`
	StopFrame  uint64  `json:"stop_frame" yaml:"stop_frame"`
	SetupFrame uint64  `json:"setup_frame,omitempty" yaml:"setup_frame,omitempty"`
	CallID     string  `json:"call_id,omitempty" yaml:"call_id,omitempty"`

	MaxDelta      float64 `json:"max_delta_ms" yaml:"max_delta_ms"`
	MaxDeltaFrame uint64  `json:"max_delta_frame" yaml:"max_delta_frame"`
	MaxJitter     float64 `json:"max_jitter_ms" yaml:"max_jitter_ms"`
	MeanJitter    float64 `json:"mean_jitter_ms" yaml:"mean_jitter_ms"`
	MaxSkew       float64 `json:"max_skew_ms" yaml:"max_skew_ms"`
	Bandwidth     float64 `json:"bandwidth_kbps" yaml:"bandwidth_kbps"`
	Duration      float64 `json:"duration_ms" yaml:"duration_ms"`

	ClockRate    uint32  `json:"clock_rate" yaml:"clock_rate"`
	ClockDrift   float64 `json:"clock_drift_ms" yaml:"clock_drift_ms"`
	FreqDriftHz  float64 `json:"freq_drift_hz" yaml:"freq_drift_hz"`
	FreqDriftPct float64 `json:"freq_drift_pct" yaml:"freq_drift_pct"`

	Problem bool `json:"problem" yaml:"problem"`
}

// Calculate derives the presentation summary of info.
func Calculate(info StreamInfo) CalculatedView {
	s := &info.Stats
	v := CalculatedView{
		Stream:        info.ID.String(),
		Source:        info.ID.Src.String(),
		Destination:   info.ID.Dst.String(),
		SSRC:          info.ID.SSRC,
		PayloadNames:  append([]string(nil), info.PayloadTypeNames...),
		Packets:       s.Total,
		SeqErrors:     s.SeqErrors,
		StartFrame:    info.StartFrame,
		StopFrame:     info.StopFrame,
		SetupFrame:    info.SetupFrame,
		CallID:        info.CallID,
		MaxDelta:      s.MaxDelta,
		MaxDeltaFrame: s.MaxDeltaFrame,
		MaxJitter:     s.MaxJitter,
		MeanJitter:    s.MeanJitter,
		MaxSkew:       s.MaxSkew,
		Bandwidth:     s.Bandwidth,
		Duration:      s.LastTime - s.StartTime,
		ClockRate:     s.ClockRate,
		Problem:       info.Problem,
	}
	if s.State == StateEmpty {
		return v
	}

	v.Expected = int64(s.ExtendedStopSeq()) - int64(s.StartSeq) + 1
	v.Lost = v.Expected - int64(s.Total)
	if v.Expected != 0 {
		v.LostPct = 100 * float64(v.Lost) / float64(v.Expected)
	}

	if coef, ok := driftCoefficient(s); ok {
		v.ClockDrift = v.Duration * (coef - 1)
		v.FreqDriftHz = coef * float64(s.ClockRate)
		v.FreqDriftPct = 100 * (coef - 1)
	}
	return v
}

// driftCoefficient is the least-squares slope of nominal media time over
// arrival time. ok is false when the fit is undefined.
func driftCoefficient(s *StreamStats) (coef float64, ok bool) {
	if s.ClockRate == 0 || s.SumCount < 2 {
		return 0, false
	}
	n := float64(s.SumCount)
	denom := n*s.SumTT - s.SumT*s.SumT
	if denom == 0 {
		return 0, false
	}
	return (n*s.SumTTS - s.SumT*s.SumTS) / denom, true
}
