package session

import (
	"fmt"
	"strconv"
)

// CallerState is the per-call record of everything captured from the caller.
// It is owned exclusively by the Session; nothing else writes to it.
type CallerState struct {
	// CallID is the transport's opaque call identifier.
	CallID string `json:"call_id,omitempty"`

	// PhoneNumber is the caller's number, when the transport knows it.
	PhoneNumber string `json:"phone_number,omitempty"`

	// Progressively captured search criteria.
	Bedrooms      int    `json:"bedrooms,omitempty"`
	MaxBudget     int    `json:"max_budget,omitempty"`
	PreferredArea string `json:"preferred_area,omitempty"`
	MoveInDate    string `json:"move_in_date,omitempty"`

	// Selection.
	ListingID      string `json:"listing_id,omitempty"`
	ListingAddress string `json:"listing_address,omitempty"`

	// Booking inputs.
	SelectedTimeSlot string `json:"selected_time_slot,omitempty"`
	CallerName       string `json:"caller_name,omitempty"`
	CallerEmail      string `json:"caller_email,omitempty"`

	// Booking result.
	EventID   string `json:"event_id,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

// setField assigns a JSON-signal value to the caller-state field with the
// given name. Numbers arrive as float64 from JSON decoding; numeric strings
// are accepted too because LLMs quote numbers unpredictably.
func (c *CallerState) setField(name string, value any) error {
	switch name {
	case "bedrooms":
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("session: field bedrooms: %w", err)
		}
		c.Bedrooms = n
	case "max_budget":
		n, err := toInt(value)
		if err != nil {
			return fmt.Errorf("session: field max_budget: %w", err)
		}
		c.MaxBudget = n
	case "preferred_area":
		c.PreferredArea = toString(value)
	case "move_in_date":
		c.MoveInDate = toString(value)
	case "listing_id":
		c.ListingID = toString(value)
	case "listing_address":
		c.ListingAddress = toString(value)
	case "selected_time_slot":
		c.SelectedTimeSlot = toString(value)
	case "caller_name":
		c.CallerName = toString(value)
	case "caller_email":
		c.CallerEmail = toString(value)
	case "event_id":
		c.EventID = toString(value)
	case "confirmed":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("session: field confirmed: expected bool, got %T", value)
		}
		c.Confirmed = b
	default:
		return fmt.Errorf("session: unknown caller-state field %q", name)
	}
	return nil
}

// redacted returns a copy safe for logs and snapshots: phone, name, and
// email are masked.
func (c CallerState) redacted() CallerState {
	if c.PhoneNumber != "" {
		c.PhoneNumber = Redact(c.PhoneNumber)
	}
	if c.CallerName != "" {
		c.CallerName = Redact(c.CallerName)
	}
	if c.CallerEmail != "" {
		c.CallerEmail = Redact(c.CallerEmail)
	}
	return c
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
