package models

import "encoding/json"

// KPIEvent is one usage event recorded from the configurator frontend.
// TS is an RFC3339 UTC timestamp; stored as text so day and month ranges
// can be selected by prefix comparison.
type KPIEvent struct {
	ID        int64           `json:"id,omitempty"`
	TS        string          `json:"ts_utc"`
	SessionID string          `json:"session_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Path      string          `json:"path"`
	UA        string          `json:"ua,omitempty"`
	IP        string          `json:"ip"`
}

type EventCount struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type KPISummary struct {
	Total int          `json:"total"`
	Top   []EventCount `json:"top"`
	ByDay []DayCount   `json:"by_day"`
}
