package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar"
)

// Compile-time interface assertion.
var _ Tool = (*CreateBooking)(nil)

// CreateBooking writes the viewing appointment to the office calendar.
type CreateBooking struct {
	provider   calendar.Provider
	calendarID string
	location   *time.Location
}

// NewCreateBooking creates the create_booking tool. location is the
// calendar's IANA timezone; nil defaults to time.Local.
func NewCreateBooking(p calendar.Provider, calendarID string, location *time.Location) *CreateBooking {
	if location == nil {
		location = time.Local
	}
	return &CreateBooking{provider: p, calendarID: calendarID, location: location}
}

// Name implements Tool.
func (t *CreateBooking) Name() string { return "create_booking" }

// Description implements Tool.
func (t *CreateBooking) Description() string {
	return "Book the viewing appointment on the office calendar and invite the caller."
}

// Schema implements Tool.
func (t *CreateBooking) Schema() map[string]Param {
	return map[string]Param{
		"date":    {Type: "string", Description: "Viewing day, format 2006-01-02.", Required: true},
		"time":    {Type: "string", Description: "Viewing start time, format 15:04.", Required: true},
		"name":    {Type: "string", Description: "Caller's full name.", Required: true},
		"email":   {Type: "string", Description: "Caller's email address for the invitation.", Required: true},
		"address": {Type: "string", Description: "Address of the listing being viewed.", Required: true},
	}
}

// Execute implements Tool.
func (t *CreateBooking) Execute(ctx context.Context, args map[string]any) (string, error) {
	date := args["date"].(string)
	clock := args["time"].(string)
	name := args["name"].(string)
	email := args["email"].(string)
	address := args["address"].(string)

	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, t.location)
	if err != nil {
		return "", fmt.Errorf("tools: create_booking: bad slot %q %q: %w", date, clock, err)
	}

	ev, err := t.provider.CreateEvent(ctx, t.calendarID, calendar.Event{
		Summary:     "Apartment viewing: " + address,
		Description: fmt.Sprintf("Viewing booked by phone for %s (%s).", name, email),
		Start:       start,
		End:         start.Add(viewingDuration),
		Attendees:   []string{email},
	})
	if err != nil {
		return "", fmt.Errorf("tools: create_booking: %w", err)
	}

	return fmt.Sprintf("Booked. The viewing at %s is confirmed for %s. A calendar invitation is on its way to %s. Confirmation number %s.",
		address, start.Format("Monday, January 2 at 3:04 PM"), email, ev.ID), nil
}
