package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeBackend answers /chat/completions per-model: models in fail return
// the given status, everything else succeeds with a canned completion.
func fakeBackend(t *testing.T, fail map[string]int, reply string) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		calls = append(calls, req.Model)

		if status, ok := fail[req.Model]; ok {
			http.Error(w, fmt.Sprintf("model %s unavailable", req.Model), status)
			return
		}

		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGenerateWithFallback_FirstSuccessWins(t *testing.T) {
	srv, calls := fakeBackend(t, map[string]int{
		"model-a": http.StatusInternalServerError,
		"model-b": http.StatusTooManyRequests,
	}, "hello from c")

	c := NewClient("key", srv.URL, 1.0)
	got, err := c.GenerateWithFallback(context.Background(), []string{"model-a", "model-b", "model-c"}, "sys", []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("GenerateWithFallback: %v", err)
	}
	if got != "hello from c" {
		t.Errorf("got %q, want %q", got, "hello from c")
	}
	if want := []string{"model-a", "model-b", "model-c"}; len(*calls) != 3 || (*calls)[2] != want[2] {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestGenerateWithFallback_SuccessStopsScan(t *testing.T) {
	srv, calls := fakeBackend(t, nil, "first try")

	c := NewClient("key", srv.URL, 1.0)
	got, err := c.GenerateWithFallback(context.Background(), []string{"model-a", "model-b"}, "sys", []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("GenerateWithFallback: %v", err)
	}
	if got != "first try" {
		t.Errorf("got %q", got)
	}
	if len(*calls) != 1 {
		t.Errorf("made %d calls, want 1 (remaining models must not be tried)", len(*calls))
	}
}

func TestGenerateWithFallback_AllFailSurfacesLastError(t *testing.T) {
	srv, _ := fakeBackend(t, map[string]int{
		"model-a": http.StatusInternalServerError,
		"model-b": http.StatusBadGateway,
		"model-c": http.StatusTooManyRequests,
	}, "")

	c := NewClient("key", srv.URL, 1.0)
	_, err := c.GenerateWithFallback(context.Background(), []string{"model-a", "model-b", "model-c"}, "sys", []ChatMessage{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error when all models fail")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error %v is not an HTTPError", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("surfaced status %d, want last model's %d", httpErr.Status, http.StatusTooManyRequests)
	}
	if !IsRateLimited(err) {
		t.Error("IsRateLimited = false for a 429 error")
	}
}

func TestGenerateWithFallback_EmptyModelList(t *testing.T) {
	c := NewClient("key", "http://unused.invalid", 1.0)
	_, err := c.GenerateWithFallback(context.Background(), nil, "sys", nil)
	if !errors.Is(err, ErrNoModels) {
		t.Fatalf("err = %v, want ErrNoModels", err)
	}
}

func TestGenerate_SystemPromptPrepended(t *testing.T) {
	var gotMessages []ChatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []ChatMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotMessages = req.Messages
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, 1.5)
	_, err := c.Generate(context.Background(), "m", "be terse", []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(gotMessages))
	}
	if gotMessages[0].Role != "system" || gotMessages[0].Content != "be terse" {
		t.Errorf("first message = %+v, want system prompt", gotMessages[0])
	}
	if gotMessages[1].Role != "user" || gotMessages[1].Content != "hi" {
		t.Errorf("second message = %+v", gotMessages[1])
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, 1.0)
	if _, err := c.Generate(context.Background(), "m", "sys", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
