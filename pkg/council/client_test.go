package council

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *BackendClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewBackendClient("test-key", "https://example.com", "test-suite",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithMaxRetries(2),
	)
	return srv, client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func TestComplete_Success(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.com" {
			t.Errorf("unexpected HTTP-Referer header: %q", got)
		}
		writeJSON(t, w, chatResponse{
			Choices: []chatChoice{{Message: chatChoiceMessage{Role: "assistant", Content: "hello"}}},
			Usage:   &chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "openai/gpt-4o"}, []Message{{Role: RoleUser, Content: "hi"}}, QueryOptions{})
	if resp.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %v (err=%v)", resp.Status, resp.Err)
	}
	if resp.Content != "hello" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.TotalTokens != 15 || !resp.HasUsage {
		t.Errorf("unexpected usage: %+v", resp)
	}
}

func TestComplete_EmptyContentNoUsage_IsValidationError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatChoiceMessage{Content: ""}}}})
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "m"}, nil, QueryOptions{})
	if resp.Status != StatusError {
		t.Fatalf("expected StatusError, got %v", resp.Status)
	}
	apiErr, ok := resp.Err.(*Error)
	if !ok || apiErr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %#v", resp.Err)
	}
}

func TestComplete_EmptyContentWithUsage_IsSuccess(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, chatResponse{
			Choices: []chatChoice{{Message: chatChoiceMessage{Content: ""}}},
			Usage:   &chatUsage{TotalTokens: 3},
		})
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "m"}, nil, QueryOptions{})
	if resp.Status != StatusOK {
		t.Fatalf("expected StatusOK for empty content with usage present, got %v (%v)", resp.Status, resp.Err)
	}
}

func TestComplete_RetriesOn429ThenSucceeds(t *testing.T) {
	var attempts int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatChoiceMessage{Content: "ok"}}}, Usage: &chatUsage{TotalTokens: 1}})
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "m"}, nil, QueryOptions{})
	if resp.Status != StatusOK {
		t.Fatalf("expected eventual success, got %v (%v)", resp.Status, resp.Err)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestComplete_NonRetryable4xxFailsImmediately(t *testing.T) {
	var attempts int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "m"}, nil, QueryOptions{})
	if resp.Status != StatusError {
		t.Fatalf("expected StatusError, got %v", resp.Status)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable 4xx, got %d", attempts)
	}
}

func TestComplete_ExhaustsRetriesOn5xx(t *testing.T) {
	var attempts int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp := client.Complete(context.Background(), ModelRef{ID: "m"}, nil, QueryOptions{})
	if resp.Status != StatusError {
		t.Fatalf("expected StatusError after exhausting retries, got %v", resp.Status)
	}
	// maxRetries=2 means attempt 0,1,2 -> 3 total tries.
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestGetAvailableModels(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,"pricing":{"prompt":"0.000005","completion":"0.000015"}}]}`))
	})

	models, err := client.GetAvailableModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "openai/gpt-4o" {
		t.Fatalf("unexpected catalog: %+v", models)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfterHeader("2"); got != 2*time.Second {
		t.Errorf("header seconds: got %v", got)
	}
	if got := parseRetryAfterMessage("please try again in 1.5s"); got != 1500*time.Millisecond {
		t.Errorf("message regex: got %v", got)
	}
	body := []byte(`{"error":{"metadata":{"retry_after_ms":250}}}`)
	if got := parseRetryAfterBody(body); got != 250*time.Millisecond {
		t.Errorf("body metadata ms: got %v", got)
	}
}
