package council

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shawkym/councilpipe/pkg/log"
)

// MetricsRecorder receives observability callbacks from a Session. A nil
// recorder (the default) disables metrics without special-casing call
// sites; see pkg/metrics for the Prometheus-backed implementation.
type MetricsRecorder interface {
	IncrementActiveSessions()
	DecrementActiveSessions()
	RecordModelRequest(model, status string)
	RecordModelDuration(model string, seconds float64)
	RecordModelTokens(model, direction string, count int)
	RecordModelCost(model string, cost float64)
	RecordRoundCompleted(round int)
}

type noopMetrics struct{}

func (noopMetrics) IncrementActiveSessions()                        {}
func (noopMetrics) DecrementActiveSessions()                        {}
func (noopMetrics) RecordModelRequest(model, status string)         {}
func (noopMetrics) RecordModelDuration(model string, seconds float64) {}
func (noopMetrics) RecordModelTokens(model, direction string, count int) {}
func (noopMetrics) RecordModelCost(model string, cost float64)      {}
func (noopMetrics) RecordRoundCompleted(round int)                  {}

// Session is the consumer-facing surface of the orchestrator: the single
// type a caller constructs once per council and then issues one or more
// queries against. It holds no per-query state between calls.
type Session struct {
	client   *BackendClient
	pricing  *PricingEstimator
	metrics  MetricsRecorder
	observer ProgressObserver
	chain    *ResponseChain

	limiterRate  float64
	limiterBurst int
}

// SessionOption customizes a Session at construction time.
type SessionOption func(*Session)

// WithMetrics attaches a MetricsRecorder; nil disables metrics recording.
func WithMetrics(m MetricsRecorder) SessionOption {
	return func(s *Session) {
		if m == nil {
			m = noopMetrics{}
		}
		s.metrics = m
	}
}

// WithProgressObserver attaches a ProgressObserver that receives per-model
// lifecycle events as queries run.
func WithProgressObserver(o ProgressObserver) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithRateLimit sets the per-model request rate (requests/sec) and burst
// size used by every query issued through this Session.
func WithRateLimit(rate float64, burst int) SessionOption {
	return func(s *Session) { s.limiterRate = rate; s.limiterBurst = burst }
}

// WithResponseChain attaches a ResponseChain every successful response is
// passed through before it is recorded. A validation rejection demotes the
// response to StatusError.
func WithResponseChain(chain *ResponseChain) SessionOption {
	return func(s *Session) { s.chain = chain }
}

// NewSession constructs a Session bound to client.
func NewSession(client *BackendClient, opts ...SessionOption) *Session {
	s := &Session{
		client:       client,
		pricing:      NewPricingEstimator(),
		metrics:      noopMetrics{},
		chain:        NewResponseChain(LoggingMiddleware, EmptyContentValidation),
		limiterRate:  0, // unlimited by default
		limiterBurst: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query runs a single-round council query: every configured model is asked
// the same prompt once, with no consensus revision and no synthesis.
func (s *Session) Query(ctx context.Context, systemPrompt, prompt string, opts QueryOptions) (ConsensusResponse, error) {
	opts.Rounds = 1
	opts.Synthesize = false
	return s.run(ctx, systemPrompt, prompt, opts)
}

// QueryWithConsensus runs the full pipeline: opts.Rounds consensus rounds,
// each revising on the prior round's surviving answers, optionally followed
// by synthesis into a single answer when opts.Synthesize is set.
func (s *Session) QueryWithConsensus(ctx context.Context, systemPrompt, prompt string, opts QueryOptions) (ConsensusResponse, error) {
	return s.run(ctx, systemPrompt, prompt, opts)
}

func (s *Session) run(ctx context.Context, systemPrompt, prompt string, opts QueryOptions) (ConsensusResponse, error) {
	sessionID := uuid.New()
	started := time.Now()

	log.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"models":     len(opts.Models),
		"rounds":     opts.Rounds,
	}).Info("council session starting")

	s.metrics.IncrementActiveSessions()
	defer s.metrics.DecrementActiveSessions()

	limiters := newLimiterSet(s.limiterRate, s.limiterBurst)

	progressCh := make(chan ProgressEvent, 64)
	done := make(chan struct{})
	go s.reportProgress(progressCh, done)

	rounds := runConsensus(ctx, s.client, limiters, s.pricing, s.chain, systemPrompt, prompt, opts, progressCh)
	close(progressCh)
	<-done

	for _, rr := range rounds {
		s.metrics.RecordRoundCompleted(rr.Round)
		for _, r := range rr.Responses {
			s.recordResponseMetrics(r)
		}
	}

	resp := ConsensusResponse{
		Rounds: rounds,
		Meta: SessionMetadata{
			SessionID: sessionID,
			StartedAt: started,
			Duration:  time.Since(started),
		},
	}

	if opts.Synthesize && len(rounds) > 0 {
		synth, err := synthesize(ctx, s.client, s.pricing, prompt, rounds, opts)
		if err != nil {
			log.WithError(err).Warn("synthesis failed")
		}
		s.recordResponseMetrics(synth)
		resp.Synthesis = &synth
	}

	resp.Meta.Duration = time.Since(started)
	return resp, nil
}

func (s *Session) recordResponseMetrics(r ModelResponse) {
	status := string(r.Status)
	s.metrics.RecordModelRequest(r.Model.ID, status)
	if r.Status == StatusOK {
		s.metrics.RecordModelDuration(r.Model.ID, r.Latency.Seconds())
		s.metrics.RecordModelTokens(r.Model.ID, "input", r.InputTokens)
		s.metrics.RecordModelTokens(r.Model.ID, "output", r.OutputTokens)
		s.metrics.RecordModelCost(r.Model.ID, r.Cost)
	}
}

// reportProgress is the single serialized goroutine that forwards
// ProgressEvents to the attached observer, if any, in delivery order.
func (s *Session) reportProgress(ch <-chan ProgressEvent, done chan<- struct{}) {
	defer close(done)
	for e := range ch {
		if s.observer != nil {
			s.observer.OnProgress(e)
		}
	}
}

// GetAvailableModels lists the models the backend gateway currently serves.
func (s *Session) GetAvailableModels(ctx context.Context) ([]ModelCatalogEntry, error) {
	return s.client.GetAvailableModels(ctx)
}

// EstimateCost returns the USD cost of a hypothetical request to modelID
// with the given total token count, without making any network call.
func (s *Session) EstimateCost(modelID string, totalTokens int) float64 {
	return s.pricing.EstimateCost(modelID, totalTokens)
}
