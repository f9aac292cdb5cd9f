package council

import (
	"fmt"
	"time"
)

// ErrorKind classifies why a backend attempt failed.
type ErrorKind string

const (
	// KindRateLimit means the backend responded 429; RetryAfter may be set.
	KindRateLimit ErrorKind = "rate_limit"
	// KindNetwork covers transport failures: timeouts, connection resets, EOF.
	KindNetwork ErrorKind = "network"
	// KindValidation covers locally-detected malformed requests or responses
	// (e.g. a 200 with an empty message and no usage block).
	KindValidation ErrorKind = "validation"
	// KindRemoteAPI covers a well-formed error response from the backend
	// that is neither a rate limit nor transient (4xx other than 429, or a
	// non-retryable 5xx after retries are exhausted).
	KindRemoteAPI ErrorKind = "remote_api"
	// KindCancelled means the caller's context was cancelled or timed out.
	KindCancelled ErrorKind = "cancelled"
)

// Error is the typed error returned by the Backend Client and propagated
// into ModelResponse.Err.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Sentinel error strings used for control-flow branching, matching the exact
// wording external callers may already be matching against.
const (
	// ErrFirstNSentinelMsg is set on a ModelResponse whose attempt was still
	// in flight when the first-N race already settled without it.
	ErrFirstNSentinelMsg = "Response not needed (first-n limit reached)"
	// ErrTimeLimitMsg is set on a ModelResponse that arrived after the
	// configured time limit and was dropped from aggregation.
	ErrTimeLimitMsg = "Filtered: exceeded time limit"
	// ErrNoContentMsg is returned by the Synthesizer Driver when every
	// response in the final round failed or was dropped.
	ErrNoContentMsg = "No successful responses to synthesize"
)

func isFirstNSentinel(r ModelResponse) bool {
	return r.Err != nil && r.Err.Error() == ErrFirstNSentinelMsg
}

func isTimeLimitSentinel(r ModelResponse) bool {
	return r.Err != nil && r.Err.Error() == ErrTimeLimitMsg
}

func isNoContentSentinel(r ModelResponse) bool {
	return r.Err != nil && r.Err.Error() == ErrNoContentMsg
}

type sentinelError string

func (s sentinelError) Error() string { return string(s) }

var (
	errFirstNSentinel = sentinelError(ErrFirstNSentinelMsg)
	errTimeLimit      = sentinelError(ErrTimeLimitMsg)
	errNoContent      = sentinelError(ErrNoContentMsg)
)
