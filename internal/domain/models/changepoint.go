package models

import (
	"time"

	"BrentShift/internal/changepoint"
)

// Where an analyzed series came from.
const (
	SourceRequest = "request"
	SourceStore   = "store"
)

// ChangePointRecord is one completed analysis as stored, cached and published.
type ChangePointRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SeriesHash string    `json:"series_hash"`
	ConfigHash string    `json:"config_hash"`
	Source     string    `json:"source"`
	Column     string    `json:"column,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	N          int       `json:"n"`
	ElapsedMS  int64     `json:"elapsed_ms"`

	Config       changepoint.Config      `json:"config"`
	Result       *changepoint.Projection `json:"result"`
	NearbyEvents []NearbyEvent           `json:"nearby_events,omitempty"`
}

// Summary returns a copy without the per-observation regime table.
func (r ChangePointRecord) Summary() ChangePointRecord {
	if r.Result != nil {
		res := *r.Result
		res.Regimes = nil
		r.Result = &res
	}
	return r
}
