package models

import "time"

// SignalVector holds the anomaly signals for one (symbol, run_date).
// Pointer fields are nil when the trailing window is too short to compute
// them; nil means "insufficient data", never "no anomaly". Vectors are a
// pure function of canonical history plus configuration and are recomputed
// and replaced, never mutated.
type SignalVector struct {
	Symbol            string    `json:"symbol"`
	RunDate           time.Time `json:"run_date"`
	Ret1D             *float64  `json:"ret_1d"`
	ZRet1D            *float64  `json:"z_ret_1d"`
	RVol60            *float64  `json:"rvol_60"`
	Is52wHigh         bool      `json:"is_52w_high"`
	Is52wLow          bool      `json:"is_52w_low"`
	Flag200DCrossUp   bool      `json:"flag_200d_cross_up"`
	Flag200DCrossDown bool      `json:"flag_200d_cross_down"`
	EventFlagCount    int       `json:"event_flag_count"`
	Score             float64   `json:"interestingness_score"`
}

// SymbolFailure reports one symbol whose fetch failed.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// FetchReport summarises a fan-out fetch. Partial results are acceptable;
// whether a failure count is tolerable is the caller's policy.
type FetchReport struct {
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Failures  []SymbolFailure `json:"failures,omitempty"`
}

// FailedSymbols returns the failed symbols in report order.
func (r *FetchReport) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Symbol)
	}
	return out
}

// ScanRun is the ranked output of one pipeline run: the ordered vectors for
// the symbols that made it through, plus the symbols omitted because their
// fetch failed.
type ScanRun struct {
	RunDate     time.Time       `json:"run_date"`
	GeneratedAt time.Time       `json:"generated_at"`
	Vectors     []SignalVector  `json:"signals"`
	Omitted     []SymbolFailure `json:"omitted,omitempty"`
	Universe    int             `json:"universe_size"`
}
