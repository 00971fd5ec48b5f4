package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestWebhookSinkDelivers(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	err := sink.Send(context.Background(), "run finished", map[string]string{"status": "complete"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["message"] != "run finished" {
		t.Errorf("message = %v", got["message"])
	}
}

func TestSlackSinkPrefixesStatus(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	sink := NewSlackSink(server.URL)
	if err := sink.Send(context.Background(), "done", map[string]string{"status": "complete"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _ := got["text"].(string)
	if !strings.HasPrefix(text, "[complete]") {
		t.Errorf("slack text should carry the status prefix, got %q", text)
	}
}

func TestTelegramSinkEndpoint(t *testing.T) {
	var path string
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	sink := NewTelegramSink("SECRET", "chat-42")
	sink.BaseURL = server.URL

	if err := sink.Send(context.Background(), "done", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(path, "botSECRET/sendMessage") {
		t.Errorf("unexpected telegram path: %s", path)
	}
	if got["chat_id"] != "chat-42" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
}

func TestSinkReportsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	if err := sink.Send(context.Background(), "msg", nil); err == nil {
		t.Error("expected error on 403")
	}
}

// countingSink records deliveries without any transport.
type countingSink struct {
	sent int
}

func (s *countingSink) ID() string { return "counting" }
func (s *countingSink) Send(ctx context.Context, message string, meta map[string]string) error {
	s.sent++
	return nil
}

func TestNotifierPerRunBudget(t *testing.T) {
	sink := &countingSink{}
	n := NewNotifier([]Sink{sink},
		WithRunBudget(2),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	meta := map[string]string{"run_id": "run-1"}
	ctx := context.Background()

	if err := n.Notify(ctx, "first", meta); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := n.Notify(ctx, "second", meta); err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if err := n.Notify(ctx, "third", meta); err == nil {
		t.Error("third delivery should exceed the per-run budget")
	}
	if sink.sent != 2 {
		t.Errorf("sink received %d messages, want 2", sink.sent)
	}

	// A different run has its own budget.
	if err := n.Notify(ctx, "other", map[string]string{"run_id": "run-2"}); err != nil {
		t.Errorf("separate run should be admitted: %v", err)
	}
}

func TestNotifierFansOutPastFailures(t *testing.T) {
	bad := NewWebhookSink("http://127.0.0.1:0/unreachable")
	good := &countingSink{}
	n := NewNotifier([]Sink{bad, good}, WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	err := n.Notify(context.Background(), "msg", map[string]string{"run_id": "r"})
	if err == nil {
		t.Error("expected the failing sink's error to surface")
	}
	if good.sent != 1 {
		t.Errorf("healthy sink must still receive the message, got %d", good.sent)
	}
}
