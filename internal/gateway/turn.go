package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
)

// defaultTokenEndpoint is the Twilio Network Traversal Service token URL,
// parameterised by account SID.
const defaultTokenEndpoint = "https://api.twilio.com/2010-04-01/Accounts/%s/Tokens.json"

// turnFetchTimeout bounds one credential request.
const turnFetchTimeout = 5 * time.Second

// TURNClient fetches short-lived TURN/STUN credentials from the Twilio
// Network Traversal Service so browser peers can cross NATs.
type TURNClient struct {
	accountSID string
	authToken  string
	endpoint   string
	client     *http.Client
	log        *slog.Logger
}

// TURNOption configures a [TURNClient].
type TURNOption func(*TURNClient)

// WithTURNEndpoint overrides the token endpoint. The value is a format string
// receiving the account SID.
func WithTURNEndpoint(endpoint string) TURNOption {
	return func(c *TURNClient) { c.endpoint = endpoint }
}

// WithTURNHTTPClient overrides the HTTP client.
func WithTURNHTTPClient(client *http.Client) TURNOption {
	return func(c *TURNClient) { c.client = client }
}

// NewTURNClient creates a credential fetcher. Returns nil when the telephony
// credentials are incomplete; callers treat a nil client as "fetch disabled".
func NewTURNClient(accountSID, authToken string, log *slog.Logger, opts ...TURNOption) *TURNClient {
	if accountSID == "" || authToken == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	c := &TURNClient{
		accountSID: accountSID,
		authToken:  authToken,
		endpoint:   defaultTokenEndpoint,
		client:     &http.Client{Timeout: turnFetchTimeout},
		log:        log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// tokenResponse is the NTS reply. Entries may carry a single "url" or a
// combined "urls" value; both are normalised into the browser shape.
type tokenResponse struct {
	ICEServers []struct {
		URL        string `json:"url,omitempty"`
		URLs       string `json:"urls,omitempty"`
		Username   string `json:"username,omitempty"`
		Credential string `json:"credential,omitempty"`
	} `json:"ice_servers"`
	TTL string `json:"ttl"`
}

// FetchICEServers requests ephemeral credentials. The returned slice is empty
// (never nil error) only on a decoded empty list; transport and status
// failures are errors so the caller can fall back.
func (c *TURNClient) FetchICEServers(ctx context.Context) ([]config.ICEServer, error) {
	url := fmt.Sprintf(c.endpoint, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: build token request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch turn credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway: turn token request returned %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("gateway: decode turn token: %w", err)
	}

	out := make([]config.ICEServer, 0, len(tok.ICEServers))
	for _, e := range tok.ICEServers {
		u := e.URLs
		if u == "" {
			u = e.URL
		}
		if u == "" {
			continue
		}
		out = append(out, config.ICEServer{
			URLs:       []string{u},
			Username:   e.Username,
			Credential: e.Credential,
		})
	}
	c.log.Info("gateway: fetched ice servers", "count", len(out), "ttl", tok.TTL)
	return out, nil
}

// iceServers resolves the list offered in a signaling hello: ephemeral
// credentials when available, the static fallback otherwise.
func (s *Server) iceServers(ctx context.Context) []config.ICEServer {
	if s.cfg.TURN != nil {
		servers, err := s.cfg.TURN.FetchICEServers(ctx)
		if err != nil {
			s.log.Warn("gateway: turn credential fetch failed, using fallback", "err", err)
		} else if len(servers) > 0 {
			return servers
		}
	}
	return s.cfg.ICEFallback
}
