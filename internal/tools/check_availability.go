package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar"
)

// Compile-time interface assertion.
var _ Tool = (*CheckAvailability)(nil)

// Viewing slot parameters. Slots are offered inside business hours over the
// next several days, each long enough for one viewing.
const (
	viewingDuration  = 30 * time.Minute
	businessOpenHour = 9
	businessCloseH   = 18
	lookaheadDays    = 7
	maxOfferedSlots  = 6
)

// CheckAvailability lists open viewing slots on the office calendar.
type CheckAvailability struct {
	provider   calendar.Provider
	calendarID string
	location   *time.Location
	now        func() time.Time
}

// CheckAvailabilityOption is a functional option for [NewCheckAvailability].
type CheckAvailabilityOption func(*CheckAvailability)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) CheckAvailabilityOption {
	return func(t *CheckAvailability) {
		t.now = now
	}
}

// NewCheckAvailability creates the check_availability tool. location is the
// calendar's IANA timezone; nil defaults to time.Local.
func NewCheckAvailability(p calendar.Provider, calendarID string, location *time.Location, opts ...CheckAvailabilityOption) *CheckAvailability {
	if location == nil {
		location = time.Local
	}
	t := &CheckAvailability{
		provider:   p,
		calendarID: calendarID,
		location:   location,
		now:        time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name implements Tool.
func (t *CheckAvailability) Name() string { return "check_availability" }

// Description implements Tool.
func (t *CheckAvailability) Description() string {
	return "List open viewing slots on the office calendar over the coming week."
}

// Schema implements Tool.
func (t *CheckAvailability) Schema() map[string]Param {
	return map[string]Param{
		"date": {
			Type:        "string",
			Description: "Optional single day to check, format 2006-01-02. Defaults to the next " + fmt.Sprint(lookaheadDays) + " days.",
		},
	}
}

// Execute implements Tool.
func (t *CheckAvailability) Execute(ctx context.Context, args map[string]any) (string, error) {
	var days []time.Time
	if raw, ok := args["date"].(string); ok && raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, t.location)
		if err != nil {
			return "", fmt.Errorf("tools: check_availability: bad date %q: %w", raw, err)
		}
		days = []time.Time{day}
	} else {
		start := t.now().In(t.location)
		for i := 1; i <= lookaheadDays; i++ {
			d := start.AddDate(0, 0, i)
			days = append(days, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.location))
		}
	}

	var lines []string
	for _, day := range days {
		open, err := calendar.AvailableSlots(ctx, t.provider, t.calendarID,
			day.Add(businessOpenHour*time.Hour),
			day.Add(businessCloseH*time.Hour),
			viewingDuration)
		if err != nil {
			return "", fmt.Errorf("tools: check_availability: %w", err)
		}
		for _, s := range open {
			lines = append(lines, formatSlot(s))
			if len(lines) >= maxOfferedSlots {
				break
			}
		}
		if len(lines) >= maxOfferedSlots {
			break
		}
	}

	if len(lines) == 0 {
		return "No viewing slots are open in the coming week.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// formatSlot renders one open interval speakably, e.g.
// "Wednesday, September 2 from 9:00 AM to 11:00 AM".
func formatSlot(s calendar.Slot) string {
	return fmt.Sprintf("%s from %s to %s",
		s.Start.Format("Monday, January 2"),
		s.Start.Format("3:04 PM"),
		s.End.Format("3:04 PM"))
}
