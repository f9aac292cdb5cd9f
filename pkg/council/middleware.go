package council

import (
	"fmt"

	"github.com/shawkym/councilpipe/pkg/log"
)

// ResponseContext carries metadata about the response currently flowing
// through a ResponseChain.
type ResponseContext struct {
	Round      int
	Model      ModelRef
	SessionID  string
	Metadata   map[string]interface{}
}

// ResponseMiddleware processes a ModelResponse in a chain. It can reject a
// response (by returning an error), transform it, or pass it through
// unchanged.
type ResponseMiddleware interface {
	Process(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error)
	Name() string
}

// ResponseProcessFunc processes a response, used to chain middleware together.
type ResponseProcessFunc func(ctx *ResponseContext, resp *ModelResponse) (*ModelResponse, error)

// ResponseChain is an ordered sequence of ResponseMiddleware.
type ResponseChain struct {
	middleware []ResponseMiddleware
}

// NewResponseChain creates a chain from the given middleware, in order.
func NewResponseChain(middleware ...ResponseMiddleware) *ResponseChain {
	return &ResponseChain{middleware: middleware}
}

// Add appends middleware to the end of the chain.
func (c *ResponseChain) Add(m ResponseMiddleware) {
	c.middleware = append(c.middleware, m)
}

// Process runs resp through every middleware in the chain, in order.
func (c *ResponseChain) Process(ctx *ResponseContext, resp *ModelResponse) (*ModelResponse, error) {
	if len(c.middleware) == 0 {
		return resp, nil
	}

	var process ResponseProcessFunc = func(ctx *ResponseContext, resp *ModelResponse) (*ModelResponse, error) {
		return resp, nil
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		m := c.middleware[i]
		next := process
		process = func(ctx *ResponseContext, resp *ModelResponse) (*ModelResponse, error) {
			return m.Process(ctx, resp, next)
		}
	}

	return process(ctx, resp)
}

// Len returns the number of middleware in the chain.
func (c *ResponseChain) Len() int { return len(c.middleware) }

type responseMiddlewareFunc struct {
	name string
	fn   func(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error)
}

func (m *responseMiddlewareFunc) Process(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error) {
	return m.fn(ctx, resp, next)
}

func (m *responseMiddlewareFunc) Name() string { return m.name }

// NewResponseMiddlewareFunc adapts a plain function to ResponseMiddleware.
func NewResponseMiddlewareFunc(name string, fn func(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error)) ResponseMiddleware {
	return &responseMiddlewareFunc{name: name, fn: fn}
}

// ValidationFunc inspects a response and returns an error if it is invalid.
type ValidationFunc func(ctx *ResponseContext, resp *ModelResponse) error

// NewValidationMiddleware builds middleware that rejects a response when
// validate returns an error.
func NewValidationMiddleware(name string, validate ValidationFunc) ResponseMiddleware {
	return NewResponseMiddlewareFunc(name, func(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error) {
		if err := validate(ctx, resp); err != nil {
			log.WithFields(map[string]interface{}{
				"middleware": name,
				"model":      ctx.Model.ID,
				"round":      ctx.Round,
			}).WithError(err).Warn("response validation failed")
			return nil, fmt.Errorf("validation failed in %s: %w", name, err)
		}
		return next(ctx, resp)
	})
}

// EmptyContentValidation rejects a successful response whose content is
// blank, which would otherwise silently contribute nothing to consensus.
var EmptyContentValidation = NewValidationMiddleware("empty-content", func(ctx *ResponseContext, resp *ModelResponse) error {
	if resp.Status == StatusOK && resp.Content == "" {
		return fmt.Errorf("response content is empty")
	}
	return nil
})

// LoggingMiddleware logs every response that passes through the chain.
var LoggingMiddleware = NewResponseMiddlewareFunc("logging", func(ctx *ResponseContext, resp *ModelResponse, next ResponseProcessFunc) (*ModelResponse, error) {
	log.WithFields(map[string]interface{}{
		"model":  ctx.Model.ID,
		"round":  ctx.Round,
		"status": resp.Status,
	}).Debug("response processed")
	return next(ctx, resp)
})
