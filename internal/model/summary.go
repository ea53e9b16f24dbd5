package model

import "time"

// PassSummary counts the outcome of one pass over its selected items.
// Selected = Succeeded + Empty + Failed for a pass that ran to completion.
// Empty counts schools with no current evidence; TooLong counts the
// failures caused by oversized prompts.
type PassSummary struct {
	Pass      Pass          `json:"pass"`
	Key       ExtractionKey `json:"key"`
	Selected  int           `json:"selected"`
	Succeeded int           `json:"succeeded"`
	Empty     int           `json:"empty"`
	Failed    int           `json:"failed"`
	TooLong   int           `json:"too_long"`
	CostUSD   float64       `json:"cost_usd"`
	Duration  time.Duration `json:"duration"`
}

// FailureRate returns Failed over the items that finished.
func (s PassSummary) FailureRate() float64 {
	done := s.Succeeded + s.Empty + s.Failed
	if done == 0 {
		return 0
	}
	return float64(s.Failed) / float64(done)
}
