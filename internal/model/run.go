package model

import "time"

// RunResult summarizes one pipeline pass.
type RunResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Fresh      int       `json:"fresh"`
	Relevant   int       `json:"relevant"`
	DeepRuns   int       `json:"deep_runs"`
	Stored     int       `json:"stored"`
	Alerts     int       `json:"alerts"`
	Leads      int       `json:"leads"`
	Failed     int       `json:"failed"`
	EstCostUSD float64   `json:"est_cost_usd"`
	Articles   []Article `json:"articles"`
}
