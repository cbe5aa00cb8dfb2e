// Package google provides a calendar.Provider backed by the Google Calendar
// REST API. Authentication uses a service account whose credentials JSON is
// supplied at construction; the target calendar must be shared with the
// service account's email address.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar"
)

// Ensure Provider implements calendar.Provider at compile time.
var _ calendar.Provider = (*Provider)(nil)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	scope          = "https://www.googleapis.com/auth/calendar"
	defaultTimeout = 15 * time.Second
)

// Provider talks to the Google Calendar v3 REST API.
type Provider struct {
	baseURL string
	client  *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the API endpoint. Intended for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithHTTPClient replaces the OAuth-authenticated client. When set, the
// credentials file is not read. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates a Google Calendar provider from a service-account credentials
// file.
func New(ctx context.Context, credentialsFile string, opts ...Option) (*Provider, error) {
	p := &Provider{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("calendar google: read credentials: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(data, scope)
		if err != nil {
			return nil, fmt.Errorf("calendar google: parse credentials: %w", err)
		}
		p.client = conf.Client(ctx)
		p.client.Timeout = defaultTimeout
	}
	return p, nil
}

type freeBusyRequest struct {
	TimeMin string         `json:"timeMin"`
	TimeMax string         `json:"timeMax"`
	Items   []freeBusyItem `json:"items"`
}

type freeBusyItem struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// BusyIntervals implements calendar.Provider via the freeBusy endpoint.
func (p *Provider) BusyIntervals(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Slot, error) {
	reqBody := freeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   []freeBusyItem{{ID: calendarID}},
	}
	var resp freeBusyResponse
	if err := p.do(ctx, http.MethodPost, p.baseURL+"/freeBusy", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("calendar google: freebusy: %w", err)
	}

	var busy []calendar.Slot
	for _, b := range resp.Calendars[calendarID].Busy {
		busy = append(busy, calendar.Slot{Start: b.Start, End: b.End})
	}
	return busy, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type attendee struct {
	Email string `json:"email"`
}

type eventBody struct {
	ID          string     `json:"id,omitempty"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees,omitempty"`
}

// CreateEvent implements calendar.Provider.
func (p *Provider) CreateEvent(ctx context.Context, calendarID string, ev calendar.Event) (calendar.Event, error) {
	if !ev.End.After(ev.Start) {
		return calendar.Event{}, fmt.Errorf("calendar google: event end %v is not after start %v", ev.End, ev.Start)
	}
	body := eventBody{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	for _, a := range ev.Attendees {
		body.Attendees = append(body.Attendees, attendee{Email: a})
	}

	var created eventBody
	u := fmt.Sprintf("%s/calendars/%s/events", p.baseURL, url.PathEscape(calendarID))
	if err := p.do(ctx, http.MethodPost, u, body, &created); err != nil {
		return calendar.Event{}, fmt.Errorf("calendar google: create event: %w", err)
	}
	ev.ID = created.ID
	return ev, nil
}

// CancelEvent implements calendar.Provider. A 410 Gone response counts as
// success; the event is already removed.
func (p *Provider) CancelEvent(ctx context.Context, calendarID, eventID string) error {
	u := fmt.Sprintf("%s/calendars/%s/events/%s",
		p.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("calendar google: cancel event: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar google: cancel event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusGone {
		return fmt.Errorf("calendar google: cancel event: %s", readError(resp))
	}
	return nil
}

// do sends a JSON request and decodes the JSON response into out.
func (p *Provider) do(ctx context.Context, method, u string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s", readError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// readError summarises a non-2xx response for error messages.
func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
