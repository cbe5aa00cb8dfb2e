package whisper_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt/whisper"
)

func TestNew_EmptyURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

// startServer runs a fake whisper-server that records the inference form
// fields and replies with the given JSON body.
func startServer(t *testing.T, reply string, gotForm *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if gotForm != nil {
			form := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					form[k] = v[0]
				}
			}
			if f, _, err := r.FormFile("file"); err == nil {
				data, _ := io.ReadAll(f)
				if len(data) >= 4 {
					form["_fileHeader"] = string(data[:4])
				}
				_ = f.Close()
			}
			*gotForm = form
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe_ParsesVerboseResponse(t *testing.T) {
	var form map[string]string
	srv := startServer(t, `{
		"text": " Hi, I'm looking for a two bedroom. ",
		"segments": [
			{"text": "Hi, I'm looking for a two bedroom.", "no_speech_prob": 0.02, "avg_logprob": -0.25}
		]
	}`, &form)

	p, err := whisper.New(srv.URL, whisper.WithLanguage("en"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "Hi, I'm looking for a two bedroom." {
		t.Errorf("text = %q", result.Text)
	}
	if result.NoSpeechProb != 0.02 {
		t.Errorf("no speech prob = %v, want 0.02", result.NoSpeechProb)
	}
	if result.AvgLogProb != -0.25 {
		t.Errorf("avg logprob = %v, want -0.25", result.AvgLogProb)
	}

	if form["language"] != "en" {
		t.Errorf("language field = %q, want en", form["language"])
	}
	if form["model"] != "base.en" {
		t.Errorf("model field = %q, want base.en", form["model"])
	}
	if form["response_format"] != "verbose_json" {
		t.Errorf("response_format field = %q, want verbose_json", form["response_format"])
	}
	if form["_fileHeader"] != "RIFF" {
		t.Errorf("uploaded file is not WAV, header %q", form["_fileHeader"])
	}
}

func TestTranscribe_AveragesSegments(t *testing.T) {
	srv := startServer(t, `{
		"text": "one two",
		"segments": [
			{"no_speech_prob": 0.1, "avg_logprob": -0.2},
			{"no_speech_prob": 0.3, "avg_logprob": -0.4}
		]
	}`, nil)

	p, _ := whisper.New(srv.URL)
	result, err := p.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.NoSpeechProb < 0.199 || result.NoSpeechProb > 0.201 {
		t.Errorf("no speech prob = %v, want 0.2", result.NoSpeechProb)
	}
	if result.AvgLogProb < -0.301 || result.AvgLogProb > -0.299 {
		t.Errorf("avg logprob = %v, want -0.3", result.AvgLogProb)
	}
}

func TestTranscribe_EmptyTextWithoutSegmentsIsNoSpeech(t *testing.T) {
	srv := startServer(t, `{"text": "  "}`, nil)

	p, _ := whisper.New(srv.URL)
	result, err := p.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty", result.Text)
	}
	if result.NoSpeechProb != 1 {
		t.Errorf("no speech prob = %v, want 1", result.NoSpeechProb)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err == nil {
		t.Fatal("expected error on HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status: %v", err)
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	srv := startServer(t, `{not json`, nil)

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), make([]byte, 640), 16000); err == nil {
		t.Fatal("expected error on malformed JSON")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	srv := startServer(t, `{"text":"x"}`, nil)

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 640), 16000); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}
