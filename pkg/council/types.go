// Package council implements the fan-out/fan-in multi-model deliberation
// engine: a single prompt is dispatched to a declared set of backend models,
// their answers are collected concurrently, optionally refined over further
// consensus rounds, and optionally folded into one synthesized answer.
package council

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "assistant"
)

// Message is a single turn in a conversation handed to a backend model.
type Message struct {
	Role    Role
	Content string
}

// ModelRef identifies one backend model entry in a council: either a bare
// model id, or an id paired with a per-model system-prompt override.
type ModelRef struct {
	// ID is the wire model identifier, e.g. "openai/gpt-4o".
	ID string
	// Label is an optional human-facing name; defaults to ID when empty.
	Label string
	// SystemPrompt, if non-empty, overrides the council's system prompt for
	// this model only. See effectiveSystem.
	SystemPrompt string
}

func (m ModelRef) label() string {
	if m.Label != "" {
		return m.Label
	}
	return m.ID
}

// modelID is the total accessor spec callers use to compare a RoundResult
// slot back to the ModelRef that produced it; trivial here because ID is
// already exported, but named to mirror the contract explicitly.
func modelID(m ModelRef) string { return m.ID }

// defaultSystemPrompt is used when neither a model override nor a council
// system prompt is set.
const defaultSystemPrompt = "You are a helpful assistant. Answer the user's question directly and concisely."

// effectiveSystem resolves the system prompt actually sent to model: its own
// override if present, else the council's system prompt, else
// defaultSystemPrompt.
func effectiveSystem(model ModelRef, councilSystem string) string {
	if model.SystemPrompt != "" {
		return model.SystemPrompt
	}
	if councilSystem != "" {
		return councilSystem
	}
	return defaultSystemPrompt
}

// WebSearchOptions configures retrieval-augmented answering for a query.
// Exactly one of the zero-value forms is used at a time: when
// SearchContextSize is non-empty the native ":online" suffix + metadata form
// is used; otherwise, if Enabled or MaxResults > 0, the plugin-array form is
// used.
type WebSearchOptions struct {
	Enabled           bool
	MaxResults        int
	SearchContextSize string // "low", "medium", "high"
}

func (w WebSearchOptions) active() bool {
	return w.Enabled || w.MaxResults > 0 || w.SearchContextSize != ""
}

// QueryOptions configures a single council invocation.
type QueryOptions struct {
	// Models is the ordered set of backends to query. Order is preserved
	// throughout the pipeline and determines tie-break and display order.
	Models []ModelRef
	// Temperature, if non-nil, is forwarded to every backend call.
	Temperature *float64
	// MaxTokens, if non-nil, is forwarded to every backend call.
	MaxTokens *int
	// FirstN, if > 0, stops the round as soon as N models have settled
	// (succeeded or failed) instead of waiting for every model.
	FirstN int
	// TimeLimit, if > 0, drops any successful response that took longer than
	// this to arrive before synthesis/aggregation sees it; error responses
	// are kept.
	TimeLimit time.Duration
	// Rounds is the number of consensus rounds to run. Rounds <= 1 means a
	// single round with no peer revision.
	Rounds int
	// Synthesize requests a final synthesized answer from SynthesizerModel
	// once the last round completes.
	Synthesize       bool
	SynthesizerModel ModelRef
	// WebSearch enables retrieval-augmented answering, see WebSearchOptions.
	WebSearch WebSearchOptions
}

// CouncilConfig is the validated, ready-to-run configuration the
// orchestrator consumes. It is produced by pkg/config from a YAML document
// and never touches the filesystem itself.
type CouncilConfig struct {
	Name        string
	SystemPrompt string
	Options     QueryOptions
}

// Citation is a single web-search source attached to a ModelResponse.
type Citation struct {
	Title string
	URL   string
}

// ResponseStatus classifies how a per-model attempt settled.
type ResponseStatus string

const (
	StatusOK      ResponseStatus = "ok"
	StatusError   ResponseStatus = "error"
	StatusDropped ResponseStatus = "dropped" // filtered by FirstN or TimeLimit
)

// ModelResponse is one backend model's answer (or failure) within a round.
type ModelResponse struct {
	Model        ModelRef
	Status       ResponseStatus
	Content      string
	Citations    []Citation
	Err          error
	Latency      time.Duration
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64
	// HasUsage is false when the backend returned 200 with no usage block;
	// Cost/TotalTokens are then left at zero rather than estimated.
	HasUsage bool
}

// RoundResult is the full set of per-model outcomes for one consensus round.
type RoundResult struct {
	Round     int
	Responses []ModelResponse
}

// ConsensusResponse is the terminal result of a council invocation.
type ConsensusResponse struct {
	Rounds    []RoundResult
	Synthesis *ModelResponse // nil unless QueryOptions.Synthesize was set; a failed synthesis is attached with StatusError
	Meta      SessionMetadata
}

// SessionMetadata carries observability data about one council run.
type SessionMetadata struct {
	SessionID uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
}

// ModelCatalogEntry describes one model as returned by GetAvailableModels.
type ModelCatalogEntry struct {
	ID                   string
	Name                 string
	ContextLength        int
	PromptPricePer1M     float64
	CompletionPricePer1M float64
	TopProvider          string
}

// ProgressStatus is the lifecycle stage reported for one model within a round.
type ProgressStatus string

const (
	ProgressPreparing ProgressStatus = "preparing"
	ProgressQuerying  ProgressStatus = "querying"
	ProgressComplete  ProgressStatus = "complete"
	ProgressError     ProgressStatus = "error"
)

// ProgressEvent is delivered to an optional ProgressObserver as a council
// round executes.
type ProgressEvent struct {
	Round  int
	Model  ModelRef
	Status ProgressStatus
}

// ProgressObserver receives ProgressEvents serially, in delivery order, from
// a single internal goroutine. Implementations must not block for long.
type ProgressObserver interface {
	OnProgress(ProgressEvent)
}

// ProgressObserverFunc adapts a function to a ProgressObserver.
type ProgressObserverFunc func(ProgressEvent)

func (f ProgressObserverFunc) OnProgress(e ProgressEvent) { f(e) }
