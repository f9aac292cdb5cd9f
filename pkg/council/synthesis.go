package council

import (
	"context"
	"fmt"
	"strings"
)

// synthesizerSystemPrompt is the fixed system message sent to the
// synthesizer model; it never varies with council size or content.
const synthesizerSystemPrompt = "You are an expert synthesizer. Provide clear, direct answers based on the information given. Never mention the synthesis process or multiple sources."

// synthesizerClosingDirective is appended to every synthesis prompt so the
// synthesizer answers as if it were the sole respondent.
const synthesizerClosingDirective = "Do not mention the council, multiple perspectives, or synthesis process. Simply answer the question as if you are providing the definitive response."

// synthesize asks SynthesizerModel to fold the full round transcript into a
// single answer. A single-round council is presented as "Expert
// Perspectives", each surviving response numbered by council position
// ("Perspective {i+1}"); a multi-round council is presented as "Full Council
// Discussion", enumerating every round with each surviving response
// addressed by council-position "Elder {i+1}" (errored elders are skipped).
// If the final round has no surviving response, returns a failed
// ModelResponse carrying the NoContent sentinel rather than making a
// network call.
func synthesize(ctx context.Context, client *BackendClient, pricing *PricingEstimator, userPrompt string, rounds []RoundResult, opts QueryOptions) (ModelResponse, error) {
	if len(rounds) == 0 {
		return ModelResponse{Model: opts.SynthesizerModel, Status: StatusError, Err: errNoContent}, errNoContent
	}

	final := rounds[len(rounds)-1]

	anySuccess := false
	for _, r := range final.Responses {
		if r.Status == StatusOK {
			anySuccess = true
			break
		}
	}
	if !anySuccess {
		return ModelResponse{Model: opts.SynthesizerModel, Status: StatusError, Err: errNoContent}, errNoContent
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question:\n%s\n\n", userPrompt)

	if len(rounds) == 1 {
		sb.WriteString("Expert Perspectives:\n\n")
		for i, r := range final.Responses {
			if r.Status != StatusOK {
				continue
			}
			fmt.Fprintf(&sb, "Perspective %d:\n%s\n\n", i+1, r.Content)
		}
	} else {
		sb.WriteString("Full Council Discussion:\n\n")
		for _, rr := range rounds {
			fmt.Fprintf(&sb, "Round %d:\n", rr.Round)
			for i, r := range rr.Responses {
				if r.Status != StatusOK {
					continue
				}
				fmt.Fprintf(&sb, "Elder %d:\n%s\n\n", i+1, r.Content)
			}
		}
	}

	sb.WriteString(synthesizerClosingDirective)

	messages := []Message{
		{Role: RoleSystem, Content: synthesizerSystemPrompt},
		{Role: RoleUser, Content: sb.String()},
	}

	resp := client.Complete(ctx, opts.SynthesizerModel, messages, QueryOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if resp.Status == StatusOK && resp.HasUsage && pricing != nil {
		resp.Cost = pricing.EstimateCost(opts.SynthesizerModel.ID, resp.TotalTokens)
	}
	return resp, nil
}
