// Package calendar defines the Provider interface for calendar backends and
// the free/busy inversion used to offer viewing slots.
//
// A provider reports busy intervals; [AvailableSlots] inverts them into open
// slots of at least a minimum duration inside a query window. Keeping the
// inversion out of the provider means every backend only has to answer the
// simple question "when are you busy".
//
// Implementations must be safe for concurrent use.
package calendar

import (
	"context"
	"sort"
	"time"
)

// Event is one calendar entry.
type Event struct {
	// ID is the backend-assigned event identifier. Empty on create input.
	ID string `json:"id,omitempty"`

	// Summary is the event title.
	Summary string `json:"summary"`

	// Description is the free-form event body.
	Description string `json:"description,omitempty"`

	// Start and End bound the event.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Attendees are invitee email addresses.
	Attendees []string `json:"attendees,omitempty"`
}

// Slot is a half-open time interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the slot length.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Provider is the abstraction over any calendar backend.
type Provider interface {
	// BusyIntervals returns the intervals within [start, end) during which
	// calendarID is occupied. Intervals may overlap and appear in any order.
	BusyIntervals(ctx context.Context, calendarID string, start, end time.Time) ([]Slot, error)

	// CreateEvent adds ev to calendarID and returns the stored event with its
	// backend-assigned ID.
	CreateEvent(ctx context.Context, calendarID string, ev Event) (Event, error)

	// CancelEvent removes the event with the given ID from calendarID.
	CancelEvent(ctx context.Context, calendarID, eventID string) error
}

// AvailableSlots fetches busy intervals from p and inverts them into open
// slots of at least minDuration within [start, end).
func AvailableSlots(ctx context.Context, p Provider, calendarID string, start, end time.Time, minDuration time.Duration) ([]Slot, error) {
	busy, err := p.BusyIntervals(ctx, calendarID, start, end)
	if err != nil {
		return nil, err
	}
	return InvertBusy(busy, start, end, minDuration), nil
}

// InvertBusy computes the open slots within [start, end) that are not covered
// by any busy interval and are at least minDuration long. Busy intervals may
// overlap, touch, or extend past the window; they are clamped and merged
// first. The result is sorted by start time.
func InvertBusy(busy []Slot, start, end time.Time, minDuration time.Duration) []Slot {
	if !end.After(start) {
		return nil
	}

	// Clamp to the window and drop empty intervals.
	clamped := make([]Slot, 0, len(busy))
	for _, b := range busy {
		s, e := b.Start, b.End
		if s.Before(start) {
			s = start
		}
		if e.After(end) {
			e = end
		}
		if e.After(s) {
			clamped = append(clamped, Slot{Start: s, End: e})
		}
	}
	sort.Slice(clamped, func(i, j int) bool {
		return clamped[i].Start.Before(clamped[j].Start)
	})

	// Merge overlapping and touching intervals.
	merged := clamped[:0]
	for _, b := range clamped {
		if n := len(merged); n > 0 && !b.Start.After(merged[n-1].End) {
			if b.End.After(merged[n-1].End) {
				merged[n-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}

	// The gaps between merged busy intervals are the open slots.
	var open []Slot
	cursor := start
	for _, b := range merged {
		if b.Start.After(cursor) {
			open = append(open, Slot{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if end.After(cursor) {
		open = append(open, Slot{Start: cursor, End: end})
	}

	if minDuration <= 0 {
		return open
	}
	kept := open[:0]
	for _, s := range open {
		if s.Duration() >= minDuration {
			kept = append(kept, s)
		}
	}
	return kept
}
