package council

import (
	"context"
	"sync"

	"github.com/shawkym/councilpipe/pkg/log"
	"github.com/shawkym/councilpipe/pkg/ratelimit"
)

// fanOut dispatches messages to every model in opts.Models concurrently and
// returns one RoundResult, in Models order. Each model acquires its own
// rate limiter token (shared across rounds of one session) before it is
// allowed to call the backend.
//
// carry, if non-nil, lets the caller short-circuit specific models: for
// index i, a non-nil carry[i] is copied straight into the result without a
// network call or rate-limiter wait, used by the Consensus Driver to
// propagate an error slot from the prior round without re-querying it.
//
// If opts.FirstN > 0 and less than len(opts.Models), and this is round 1
// (carry == nil — the race is fixed after round 1 per the consensus
// contract), the round races to N settlements (success or failure both
// count); any model that has not yet settled when the Nth settlement lands
// is marked StatusDropped with the first-N sentinel error and its in-flight
// request is cancelled.
func fanOut(ctx context.Context, client *BackendClient, limiters *limiterSet, pricing *PricingEstimator, chain *ResponseChain, round int, buildMessages func(i int, model ModelRef) []Message, carry []*ModelResponse, opts QueryOptions, progress chan<- ProgressEvent) RoundResult {
	n := len(opts.Models)
	results := make([]ModelResponse, n)

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	settled := 0
	firstN := opts.FirstN
	racing := carry == nil && firstN > 0 && firstN < n

	emit := func(e ProgressEvent) {
		select {
		case progress <- e:
		default:
		}
	}

	for i, model := range opts.Models {
		if carry != nil && carry[i] != nil {
			results[i] = *carry[i]
			continue
		}

		wg.Add(1)
		go func(i int, model ModelRef) {
			defer wg.Done()

			emit(ProgressEvent{Round: round, Model: model, Status: ProgressPreparing})

			limiter := limiters.forModel(model.ID)
			if err := limiter.Wait(roundCtx); err != nil {
				fallback := ModelResponse{
					Model: model, Status: StatusError,
					Err: &Error{Kind: KindCancelled, Message: err.Error()},
				}
				if ctx.Err() == nil {
					// Parent context is still alive; this cancellation came
					// from our own first-N cutoff, not the caller.
					fallback = ModelResponse{Model: model, Status: StatusDropped, Err: errFirstNSentinel}
				}
				recordSettlement(&mu, &settled, results, i, fallback, firstN, racing, cancel)
				emit(ProgressEvent{Round: round, Model: model, Status: ProgressError})
				return
			}

			emit(ProgressEvent{Round: round, Model: model, Status: ProgressQuerying})

			messages := buildMessages(i, model)
			resp := client.Complete(roundCtx, model, messages, opts)
			if resp.Status == StatusOK && resp.HasUsage && pricing != nil {
				resp.Cost = pricing.EstimateCost(model.ID, resp.TotalTokens)
			}
			if ce, ok := resp.Err.(*Error); ok && ce.Kind == KindCancelled && ctx.Err() == nil {
				resp = ModelResponse{Model: model, Status: StatusDropped, Err: errFirstNSentinel}
			}

			if chain != nil && resp.Status == StatusOK {
				rctx := &ResponseContext{Round: round, Model: model}
				processed, err := chain.Process(rctx, &resp)
				if err != nil {
					resp = ModelResponse{Model: model, Status: StatusError, Latency: resp.Latency, Err: &Error{Kind: KindValidation, Message: err.Error()}}
				} else {
					resp = *processed
				}
			}

			wasRecorded := recordSettlement(&mu, &settled, results, i, resp, firstN, racing, cancel)
			if !wasRecorded {
				emit(ProgressEvent{Round: round, Model: model, Status: ProgressError})
				return
			}

			status := ProgressComplete
			if resp.Status != StatusOK {
				status = ProgressError
				log.WithFields(map[string]interface{}{
					"model": model.ID, "round": round, "error": resp.Err,
				}).Warn("model attempt failed")
			}
			emit(ProgressEvent{Round: round, Model: model, Status: status})
		}(i, model)
	}

	wg.Wait()

	// Any slot left unset (goroutine never reached the settlement path
	// because the round context was cancelled before it started) is filled
	// with the first-N sentinel.
	mu.Lock()
	for i, r := range results {
		if r.Model.ID == "" && (carry == nil || carry[i] == nil) {
			results[i] = ModelResponse{
				Model:  opts.Models[i],
				Status: StatusDropped,
				Err:    errFirstNSentinel,
			}
		}
	}
	mu.Unlock()

	return RoundResult{Round: round, Responses: results}
}

// recordSettlement writes resp into results[i] under the lock, and if this
// settlement is the Nth one in a racing round, cancels the round so
// still-in-flight attempts stop. Returns false if the racing round had
// already reached N settlements before this call acquired the lock; the slot
// then receives the first-N sentinel instead of resp (i.e. the attempt is
// treated as not having settled after all).
func recordSettlement(mu *sync.Mutex, settled *int, results []ModelResponse, i int, resp ModelResponse, firstN int, racing bool, cancel context.CancelFunc) bool {
	mu.Lock()
	defer mu.Unlock()

	if racing && *settled >= firstN {
		results[i] = ModelResponse{Model: resp.Model, Status: StatusDropped, Err: errFirstNSentinel}
		return false
	}

	results[i] = resp
	*settled++

	if racing && *settled >= firstN {
		cancel()
	}
	return true
}

// limiterSet lazily allocates one rate limiter per model id, shared across
// every round of a session so a multi-round consensus run still respects a
// single per-minute budget per model.
type limiterSet struct {
	mu       sync.Mutex
	rate     float64
	burst    int
	limiters map[string]*ratelimit.Limiter
}

func newLimiterSet(rate float64, burst int) *limiterSet {
	return &limiterSet{rate: rate, burst: burst, limiters: make(map[string]*ratelimit.Limiter)}
}

func (s *limiterSet) forModel(modelID string) *ratelimit.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[modelID]; ok {
		return l
	}
	l := ratelimit.NewLimiter(s.rate, s.burst)
	s.limiters[modelID] = l
	return l
}
