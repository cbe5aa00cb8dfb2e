package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

func TestNewClient_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := search.NewClient(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"L123","score":0.91,"text":"Bright 2BR near the park","metadata":{"address":"412 Pine St","rent":1950}},
			{"id":"L077","score":0.84,"text":"2BR with balcony"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := search.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	results, err := c.Query(context.Background(), "two bedrooms downtown", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if gotBody["text"] != "two bedrooms downtown" {
		t.Errorf("text sent = %v", gotBody["text"])
	}
	if gotBody["top_k"] != float64(3) {
		t.Errorf("top_k sent = %v, want 3", gotBody["top_k"])
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ID != "L123" || results[0].Score != 0.91 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[0].Metadata["address"] != "412 Pine St" {
		t.Errorf("metadata = %v", results[0].Metadata)
	}
}

func TestQuery_DefaultTopK(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(srv.Close)

	c, _ := search.NewClient(srv.URL)
	if _, err := c.Query(context.Background(), "anything", 0); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotBody["top_k"] != float64(5) {
		t.Errorf("top_k sent = %v, want default 5", gotBody["top_k"])
	}
}

func TestQuery_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c, _ := search.NewClient(srv.URL)
	if _, err := c.Query(context.Background(), "x", 1); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}
