// Package memory provides an in-memory calendar.Provider for development and
// tests. Events live in process memory; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar"
)

// Ensure Provider implements calendar.Provider at compile time.
var _ calendar.Provider = (*Provider)(nil)

// Provider is an in-memory calendar backend. The zero value is not usable;
// construct with [New].
type Provider struct {
	mu     sync.Mutex
	nextID int
	events map[string]map[string]calendar.Event // calendarID → eventID → event
}

// New returns an empty in-memory calendar provider.
func New() *Provider {
	return &Provider{
		events: make(map[string]map[string]calendar.Event),
	}
}

// Seed inserts an event without going through CreateEvent's validation,
// keeping the given ID. Intended for test setup.
func (p *Provider) Seed(calendarID string, ev calendar.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal := p.events[calendarID]
	if cal == nil {
		cal = make(map[string]calendar.Event)
		p.events[calendarID] = cal
	}
	cal[ev.ID] = ev
}

// BusyIntervals implements calendar.Provider.
func (p *Provider) BusyIntervals(_ context.Context, calendarID string, start, end time.Time) ([]calendar.Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var busy []calendar.Slot
	for _, ev := range p.events[calendarID] {
		if ev.End.After(start) && ev.Start.Before(end) {
			busy = append(busy, calendar.Slot{Start: ev.Start, End: ev.End})
		}
	}
	return busy, nil
}

// CreateEvent implements calendar.Provider.
func (p *Provider) CreateEvent(_ context.Context, calendarID string, ev calendar.Event) (calendar.Event, error) {
	if !ev.End.After(ev.Start) {
		return calendar.Event{}, fmt.Errorf("calendar memory: event end %v is not after start %v", ev.End, ev.Start)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	ev.ID = fmt.Sprintf("evt-%d", p.nextID)
	cal := p.events[calendarID]
	if cal == nil {
		cal = make(map[string]calendar.Event)
		p.events[calendarID] = cal
	}
	cal[ev.ID] = ev
	return ev, nil
}

// CancelEvent implements calendar.Provider.
func (p *Provider) CancelEvent(_ context.Context, calendarID, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal := p.events[calendarID]
	if _, ok := cal[eventID]; !ok {
		return fmt.Errorf("calendar memory: event %q not found in calendar %q", eventID, calendarID)
	}
	delete(cal, eventID)
	return nil
}
