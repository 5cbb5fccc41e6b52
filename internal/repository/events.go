package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"BrentShift/internal/domain/models"
	"BrentShift/pkg/util"
)

// Event categories of the built-in table.
const (
	EventGeopolitical = "Geopolitical"
	EventEconomic     = "Economic/Shock"
	EventOPEC         = "OPEC"
)

func eventDay(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// KeyEvents is the reference table of market-moving events.
var KeyEvents = []models.Event{
	{Date: eventDay(1990, 8, 2), EventType: EventGeopolitical, Description: "Iraq invades Kuwait - Gulf War begins"},
	{Date: eventDay(2001, 9, 11), EventType: EventEconomic, Description: "9/11 Terrorist Attacks - impact on global economy"},
	{Date: eventDay(2003, 3, 20), EventType: EventGeopolitical, Description: "US-led Iraq War starts"},
	{Date: eventDay(2008, 9, 15), EventType: EventEconomic, Description: "Lehman Brothers bankruptcy - Global financial crisis"},
	{Date: eventDay(2011, 2, 15), EventType: EventGeopolitical, Description: "Arab Spring uprisings begin"},
	{Date: eventDay(2014, 6, 1), EventType: EventOPEC, Description: "OPEC decides not to cut production amid falling prices"},
	{Date: eventDay(2016, 1, 17), EventType: EventOPEC, Description: "OPEC and allies agree to production cuts"},
	{Date: eventDay(2020, 3, 9), EventType: EventEconomic, Description: "COVID-19 pandemic triggers oil price crash"},
	{Date: eventDay(2022, 2, 24), EventType: EventGeopolitical, Description: "Russia invades Ukraine - global energy uncertainty"},
	{Date: eventDay(2023, 1, 1), EventType: EventEconomic, Description: "Rising inflation and tightening monetary policies impact oil demand"},
}

// StaticEventStore serves a fixed, date-sorted event list.
type StaticEventStore struct {
	events []models.Event
}

// NewStaticEventStore copies and sorts events. A nil slice selects KeyEvents.
func NewStaticEventStore(events []models.Event) *StaticEventStore {
	if events == nil {
		events = KeyEvents
	}
	out := make([]models.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return &StaticEventStore{events: out}
}

func (s *StaticEventStore) Events(context.Context) ([]models.Event, error) {
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

// LoadEventsCSV reads a Date,Event_Type,Description file.
func LoadEventsCSV(path string) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()
	return ParseEventsCSV(f)
}

// ParseEventsCSV reads events; header matching is case-insensitive and
// accepts event_type or type.
func ParseEventsCSV(r io.Reader) ([]models.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read events header: %w", err)
	}
	dateCol, typeCol, descCol := -1, -1, -1
	for i, h := range header {
		switch util.NormalizeHeader(h) {
		case "date":
			dateCol = i
		case "event_type", "type":
			typeCol = i
		case "description", "event":
			descCol = i
		}
	}
	if dateCol < 0 || descCol < 0 {
		return nil, errors.New("events file needs date and description columns")
	}

	var out []models.Event
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read events line %d: %w", line, err)
		}
		if dateCol >= len(rec) || descCol >= len(rec) {
			continue
		}
		day, ok := util.ParseDate(rec[dateCol])
		if !ok {
			return nil, fmt.Errorf("events line %d: bad date %q", line, rec[dateCol])
		}
		ev := models.Event{Date: day, Description: rec[descCol]}
		if typeCol >= 0 && typeCol < len(rec) {
			ev.EventType = rec[typeCol]
		}
		out = append(out, ev)
	}
	return out, nil
}

// NearbyEvents returns the events within window days of t, closest first.
func NearbyEvents(events []models.Event, t time.Time, window int) []models.NearbyEvent {
	var out []models.NearbyEvent
	for _, ev := range events {
		days := int(ev.Date.Sub(util.TruncateDay(t)).Hours() / 24)
		if days < -window || days > window {
			continue
		}
		out = append(out, models.NearbyEvent{Event: ev, DaysFromChange: days})
	}
	sort.SliceStable(out, func(i, j int) bool { return abs(out[i].DaysFromChange) < abs(out[j].DaysFromChange) })
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
