package council

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// scriptedGateway serves /chat/completions by looking up the request's
// model field in a fixed table, so a single httptest server can stand in
// for several distinct backend models.
func scriptedGateway(t *testing.T, byModel map[string]chatResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatal(err)
		}
		resp, ok := byModel[req.Model]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func okResponse(content string, tokens int) chatResponse {
	return chatResponse{
		Choices: []chatChoice{{Message: chatChoiceMessage{Role: "assistant", Content: content}}},
		Usage:   &chatUsage{TotalTokens: tokens, PromptTokens: tokens / 2, CompletionTokens: tokens / 2},
	}
}

// S1: single-round query across three healthy models returns three OK
// responses in Models order, with costs computed from usage.
func TestScenario_SingleRoundAllSucceed(t *testing.T) {
	srv := scriptedGateway(t, map[string]chatResponse{
		"a": okResponse("answer-a", 100),
		"b": okResponse("answer-b", 200),
		"c": okResponse("answer-c", 300),
	})
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{Models: []ModelRef{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	resp, err := session.Query(context.Background(), "system", "question", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rounds) != 1 {
		t.Fatalf("expected exactly 1 round, got %d", len(resp.Rounds))
	}
	rr := resp.Rounds[0]
	if len(rr.Responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(rr.Responses))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rr.Responses[i].Model.ID != want {
			t.Errorf("expected responses in Models order, position %d got %q", i, rr.Responses[i].Model.ID)
		}
		if rr.Responses[i].Status != StatusOK {
			t.Errorf("model %q expected StatusOK, got %v (%v)", want, rr.Responses[i].Status, rr.Responses[i].Err)
		}
	}
}

// S2: first-N race with N=1 settles as soon as the fastest model answers,
// dropping the rest with the first-N sentinel.
func TestScenario_FirstNRace(t *testing.T) {
	srv := scriptedGateway(t, map[string]chatResponse{
		"fast": okResponse("fast answer", 10),
		"slow": okResponse("slow answer", 10),
	})
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{Models: []ModelRef{{ID: "fast"}, {ID: "slow"}}, FirstN: 1}
	resp, err := session.Query(context.Background(), "", "q", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, dropped := 0, 0
	for _, r := range resp.Rounds[0].Responses {
		switch r.Status {
		case StatusOK, StatusError:
			settled++
		case StatusDropped:
			dropped++
			if !isFirstNSentinel(r) {
				t.Errorf("dropped response should carry first-N sentinel, got %v", r.Err)
			}
		}
	}
	if settled != 1 || dropped != 1 {
		t.Fatalf("expected exactly 1 settled and 1 dropped, got settled=%d dropped=%d", settled, dropped)
	}
}

// S3: multi-round consensus re-prompts each model with its peers' answers
// addressed by real model id, excluding the model's own answer.
func TestScenario_ConsensusRoundsAddressPeersByModelID(t *testing.T) {
	var secondRoundPrompt string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)

		if len(req.Messages) > 0 && req.Model == "b" {
			last := req.Messages[len(req.Messages)-1].Content
			if secondRoundPrompt == "" {
				secondRoundPrompt = last
			}
		}
		json.NewEncoder(w).Encode(okResponse("revised", 10))
	}))
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{Models: []ModelRef{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Rounds: 2}
	resp, err := session.QueryWithConsensus(context.Background(), "sys", "original question", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(resp.Rounds))
	}
	if secondRoundPrompt == "" {
		t.Fatal("expected to observe a second-round prompt")
	}
	if !containsAll(secondRoundPrompt, "**a**:", "**c**:") {
		t.Errorf("second round prompt should address surviving peers by real model id, got: %q", secondRoundPrompt)
	}
	if contains(secondRoundPrompt, "**b**:") {
		t.Errorf("second round prompt sent to model b should not list its own answer as a peer, got: %q", secondRoundPrompt)
	}
	if !hasSuffix(secondRoundPrompt, "revise or expand your answer?") {
		t.Errorf("second round prompt should end with the consensus closing question, got: %q", secondRoundPrompt)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// S4: synthesis folds the final round into one answer.
func TestScenario_Synthesis(t *testing.T) {
	srv := scriptedGateway(t, map[string]chatResponse{
		"a":          okResponse("a says x", 10),
		"b":          okResponse("b says y", 10),
		"synthesize": okResponse("synthesized answer", 20),
	})
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{
		Models:           []ModelRef{{ID: "a"}, {ID: "b"}},
		Synthesize:       true,
		SynthesizerModel: ModelRef{ID: "synthesize"},
	}
	resp, err := session.QueryWithConsensus(context.Background(), "", "q", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Synthesis == nil || resp.Synthesis.Status != StatusOK {
		t.Fatalf("expected successful synthesis, got %+v", resp.Synthesis)
	}
	if resp.Synthesis.Content != "synthesized answer" {
		t.Errorf("unexpected synthesis content: %q", resp.Synthesis.Content)
	}
}

// S5: a failed NoContent synthesis response is attached to the
// ConsensusResponse (not silently dropped) when every response in the final
// round failed.
func TestScenario_SynthesisNoContentWhenNoSuccessfulResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{
		Models:           []ModelRef{{ID: "a"}},
		Synthesize:       true,
		SynthesizerModel: ModelRef{ID: "synthesize"},
	}
	resp, err := session.QueryWithConsensus(context.Background(), "", "q", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Synthesis == nil {
		t.Fatal("expected a failed synthesis response to be attached, got nil")
	}
	if resp.Synthesis.Status != StatusError {
		t.Errorf("expected synthesis status error, got %v", resp.Synthesis.Status)
	}
	if !isNoContentSentinel(*resp.Synthesis) {
		t.Errorf("expected synthesis error to carry the NoContent sentinel, got %v", resp.Synthesis.Err)
	}
}

// S6: time-limit filtering drops a response slower than the configured
// limit before it reaches the ConsensusResponse.
func TestScenario_TimeLimitFiltersSlowResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if req.Model == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		json.NewEncoder(w).Encode(okResponse("x", 1))
	}))
	defer srv.Close()

	client := NewBackendClient("key", "ref", "title", WithBaseURL(srv.URL))
	session := NewSession(client)

	opts := QueryOptions{
		Models:    []ModelRef{{ID: "fast"}, {ID: "slow"}},
		TimeLimit: 10 * time.Millisecond,
	}
	resp, err := session.Query(context.Background(), "", "q", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawDropped bool
	for _, r := range resp.Rounds[0].Responses {
		if r.Model.ID == "slow" {
			sawDropped = r.Status == StatusDropped && isTimeLimitSentinel(r)
		}
	}
	if !sawDropped {
		t.Fatalf("expected the slow model's response to be dropped by the time limit: %+v", resp.Rounds[0].Responses)
	}
}
