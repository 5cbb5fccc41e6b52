package models

import "time"

// Event is a dated geopolitical, economic or OPEC event.
type Event struct {
	Date        time.Time `json:"date"`
	EventType   string    `json:"event_type"`
	Description string    `json:"description"`
}

// NearbyEvent is an event close to a detected change point. Negative
// offsets are events before the change.
type NearbyEvent struct {
	Event
	DaysFromChange int `json:"days_from_change"`
}
