package council

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shawkym/councilpipe/pkg/log"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// BackendClient talks to an OpenAI-compatible chat completion gateway
// (OpenRouter by default). It owns retry/backoff policy so every caller gets
// consistent behavior on 429s, 5xxs, and transport errors.
type BackendClient struct {
	baseURL    string
	apiKey     string
	referer    string
	title      string
	httpClient *http.Client
	maxRetries int
}

// ClientOption customizes a BackendClient at construction time.
type ClientOption func(*BackendClient)

// WithBaseURL overrides the default OpenRouter gateway URL.
func WithBaseURL(url string) ClientOption {
	return func(c *BackendClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client (e.g. for custom timeouts
// or transports in tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *BackendClient) { c.httpClient = hc }
}

// WithMaxRetries overrides the default retry budget (3).
func WithMaxRetries(n int) ClientOption {
	return func(c *BackendClient) { c.maxRetries = n }
}

// NewBackendClient constructs a client against apiKey, identifying itself to
// the gateway with referer/title (forwarded as HTTP-Referer/X-Title, used by
// OpenRouter for request attribution).
func NewBackendClient(apiKey, referer, title string, opts ...ClientOption) *BackendClient {
	c := &BackendClient{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		referer: referer,
		title:   title,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type pluginSpec struct {
	ID         string `json:"id"`
	MaxResults int    `json:"max_results,omitempty"`
}

type webSearchOptionsWire struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type providerWire struct {
	Plugins         []pluginSpec          `json:"plugins,omitempty"`
	WebSearchOptions *webSearchOptionsWire `json:"web_search_options,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Provider    *providerWire `json:"provider,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatErrorBody struct {
	Message  string                 `json:"message"`
	Type     string                 `json:"type"`
	Code     interface{}            `json:"code"`
	Metadata map[string]interface{} `json:"metadata"`
}

type annotationWire struct {
	Type         string `json:"type"`
	URLCitation struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"url_citation"`
}

type chatChoiceMessage struct {
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Annotations []annotationWire `json:"annotations,omitempty"`
}

type chatChoice struct {
	Index   int               `json:"index"`
	Message chatChoiceMessage `json:"message"`
}

type chatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   *chatUsage     `json:"usage"`
	Error   *chatErrorBody `json:"error"`
}

// Complete sends one chat completion request and classifies the outcome
// into a ModelResponse. It never returns a transport-level error for normal
// request failures; those are folded into ModelResponse.Err so callers can
// treat every model uniformly. opts.WebSearch, if active, is encoded per the
// selected form (see WebSearchOptions).
func (c *BackendClient) Complete(ctx context.Context, model ModelRef, messages []Message, opts QueryOptions) ModelResponse {
	start := time.Now()
	resp := ModelResponse{Model: model}

	req := chatRequest{
		Model:       model.ID,
		Messages:    toWireMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	wireModel := model.ID
	if opts.WebSearch.active() {
		if opts.WebSearch.SearchContextSize != "" {
			wireModel = model.ID + ":online"
			req.Model = wireModel
			req.Provider = &providerWire{
				WebSearchOptions: &webSearchOptionsWire{SearchContextSize: opts.WebSearch.SearchContextSize},
			}
		} else {
			spec := pluginSpec{ID: "web"}
			if opts.WebSearch.MaxResults > 0 {
				spec.MaxResults = opts.WebSearch.MaxResults
			}
			req.Provider = &providerWire{Plugins: []pluginSpec{spec}}
		}
	}

	body, err := c.doChatCompletion(ctx, req)
	resp.Latency = time.Since(start)

	if err != nil {
		resp.Status = StatusError
		resp.Err = err
		return resp
	}

	if len(body.Choices) == 0 {
		resp.Status = StatusError
		resp.Err = &Error{Kind: KindValidation, Message: "response contained no choices"}
		return resp
	}

	content := body.Choices[0].Message.Content
	if content == "" && body.Usage == nil {
		resp.Status = StatusError
		resp.Err = &Error{Kind: KindValidation, Message: "empty content with no usage metadata"}
		return resp
	}

	resp.Status = StatusOK
	resp.Content = content
	for _, a := range body.Choices[0].Message.Annotations {
		if a.Type == "url_citation" {
			resp.Citations = append(resp.Citations, Citation{Title: a.URLCitation.Title, URL: a.URLCitation.URL})
		}
	}
	if body.Usage != nil {
		resp.HasUsage = true
		resp.InputTokens = body.Usage.PromptTokens
		resp.OutputTokens = body.Usage.CompletionTokens
		resp.TotalTokens = body.Usage.TotalTokens
	}
	return resp
}

func toWireMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// doChatCompletion runs the request/retry loop shared by every model call.
func (c *BackendClient) doChatCompletion(ctx context.Context, req chatRequest) (*chatResponse, error) {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt, retryAfter)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindCancelled, Message: ctx.Err().Error()}
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}

		var apiErr *Error
		if ae, ok := err.(*Error); ok {
			apiErr = ae
			retryAfter = ae.RetryAfter
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCancelled, Message: ctx.Err().Error()}
		}

		if apiErr != nil {
			if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
				continue
			}
			// Non-retryable remote error (4xx other than 429).
			return nil, apiErr
		}

		if !isRetryableTransportError(err) {
			return nil, &Error{Kind: KindNetwork, Message: err.Error()}
		}
	}

	// A 429 or 5xx that outlasted every retry keeps its own kind
	// (KindRateLimit with its RetryAfter hint, or KindRemoteAPI).
	if ae, ok := lastErr.(*Error); ok {
		return nil, ae
	}
	return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("failed after %d retries: %v", c.maxRetries, lastErr)}
}

func (c *BackendClient) doRequest(ctx context.Context, req chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(httpResp)
	}

	var result chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return nil, &Error{Kind: KindRemoteAPI, Message: result.Error.Message, StatusCode: httpResp.StatusCode}
	}
	return &result, nil
}

func (c *BackendClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

func (c *BackendClient) handleErrorResponse(httpResp *http.Response) error {
	data, _ := io.ReadAll(httpResp.Body)

	kind := KindRemoteAPI
	if httpResp.StatusCode == http.StatusTooManyRequests {
		kind = KindRateLimit
	}

	message := string(data)
	var envelope struct {
		Error chatErrorBody `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	apiErr := &Error{Kind: kind, Message: message, StatusCode: httpResp.StatusCode}
	apiErr.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"), data, message)

	log.WithFields(map[string]interface{}{
		"status":      httpResp.StatusCode,
		"retry_after": apiErr.RetryAfter,
	}).Debug("backend returned error response")

	return apiErr
}

func parseRetryAfter(header string, body []byte, message string) time.Duration {
	if d := parseRetryAfterHeader(header); d > 0 {
		return d
	}
	if d := parseRetryAfterBody(body); d > 0 {
		return d
	}
	return parseRetryAfterMessage(message)
}

func parseRetryAfterHeader(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func parseRetryAfterBody(body []byte) time.Duration {
	var top map[string]interface{}
	if json.Unmarshal(body, &top) != nil {
		return 0
	}
	if d := parseDurationField(top); d > 0 {
		return d
	}
	if errVal, ok := top["error"].(map[string]interface{}); ok {
		if d := parseDurationField(errVal); d > 0 {
			return d
		}
		if meta, ok := errVal["metadata"].(map[string]interface{}); ok {
			if d := parseDurationField(meta); d > 0 {
				return d
			}
		}
	}
	return 0
}

func parseDurationField(m map[string]interface{}) time.Duration {
	if v, ok := numericField(m, "retry_after_ms"); ok {
		return time.Duration(v) * time.Millisecond
	}
	if v, ok := numericField(m, "retry_after_seconds"); ok {
		return time.Duration(v*float64(time.Second))
	}
	if v, ok := numericField(m, "retry_after"); ok {
		return time.Duration(v) * time.Second
	}
	return 0
}

func numericField(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

var retryAfterMessagePattern = regexp.MustCompile(`(?i)(?:try again in|retry after)\s*([0-9]+(?:\.[0-9]+)?)s`)

func parseRetryAfterMessage(message string) time.Duration {
	m := retryAfterMessagePattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// retryDelay computes the backoff before a retry attempt (attempt >= 1):
// exponential from attempt, raised to at least any server-requested
// retryAfter plus a small safety margin, then jittered.
func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	wait := time.Duration(1<<uint(shift)) * time.Second

	if retryAfter > 0 {
		floor := retryAfter + retrySafetyMargin(retryAfter)
		if floor > wait {
			wait = floor
		}
	}
	return addJitter(wait)
}

func retrySafetyMargin(d time.Duration) time.Duration {
	margin := d / 10
	if margin < 25*time.Millisecond {
		margin = 25 * time.Millisecond
	}
	if margin > 500*time.Millisecond {
		margin = 500 * time.Millisecond
	}
	return margin
}

func addJitter(d time.Duration) time.Duration {
	maxJitter := d / 10
	if maxJitter < 10*time.Millisecond {
		return d
	}
	jitter := time.Duration(math.Abs(float64(time.Now().UnixNano() % int64(maxJitter))))
	return d + jitter
}

func isRetryableTransportError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"HTTP 5", "connection", "timeout", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// GetAvailableModels fetches the gateway's model catalog. Unlike Complete,
// this propagates transport/decode failures directly: there is no
// per-model ModelResponse to fold the error into.
func (c *BackendClient) GetAvailableModels(ctx context.Context) ([]ModelCatalogEntry, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		data, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("list models: status %d: %s", httpResp.StatusCode, string(data))
	}

	var envelope struct {
		Data []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Context int    `json:"context_length"`
			Pricing struct {
				Prompt     string `json:"prompt"`
				Completion string `json:"completion"`
			} `json:"pricing"`
			TopProvider struct {
				Name string `json:"name"`
			} `json:"top_provider"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}

	out := make([]ModelCatalogEntry, 0, len(envelope.Data))
	for _, m := range envelope.Data {
		promptPrice, _ := strconv.ParseFloat(m.Pricing.Prompt, 64)
		completionPrice, _ := strconv.ParseFloat(m.Pricing.Completion, 64)
		out = append(out, ModelCatalogEntry{
			ID:                   m.ID,
			Name:                 m.Name,
			ContextLength:        m.Context,
			PromptPricePer1M:     promptPrice * 1_000_000,
			CompletionPricePer1M: completionPrice * 1_000_000,
			TopProvider:          m.TopProvider.Name,
		})
	}
	return out, nil
}

// HealthCheck issues a minimal one-token completion to confirm the gateway
// and API key are reachable.
func (c *BackendClient) HealthCheck(ctx context.Context, model ModelRef) error {
	one := 1
	req := chatRequest{
		Model:     model.ID,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: &one,
	}
	_, err := c.doChatCompletion(ctx, req)
	return err
}
