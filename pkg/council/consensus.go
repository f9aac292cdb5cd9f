package council

import (
	"context"
	"fmt"
	"strings"
)

// runConsensus drives one or more fan-out rounds.
//
// Round 1 asks every model the plain [system, user:initialPrompt] prompt.
// From round 2 onward, each model that succeeded in the prior round is
// re-prompted with its own prior answer plus every surviving peer's answer
// addressed by real model id (buildConsensusPrompt); a model that entered
// an error state in an earlier round is carried through into every later
// round without a network call, per the carry-through rule.
func runConsensus(ctx context.Context, client *BackendClient, limiters *limiterSet, pricing *PricingEstimator, chain *ResponseChain, systemPrompt, userPrompt string, opts QueryOptions, progress chan<- ProgressEvent) []RoundResult {
	rounds := opts.Rounds
	if rounds < 1 {
		rounds = 1
	}

	var results []RoundResult

	for round := 1; round <= rounds; round++ {
		var carry []*ModelResponse
		buildMessages := func(i int, model ModelRef) []Message {
			return []Message{
				{Role: RoleSystem, Content: effectiveSystem(model, systemPrompt)},
				{Role: RoleUser, Content: userPrompt},
			}
		}

		if round > 1 {
			previous := results[len(results)-1].Responses
			carry = make([]*ModelResponse, len(previous))
			for i, r := range previous {
				if r.Status != StatusOK {
					carried := r
					carry[i] = &carried
				}
			}
			buildMessages = func(i int, model ModelRef) []Message {
				return []Message{
					{Role: RoleSystem, Content: effectiveSystem(model, systemPrompt)},
					{Role: RoleUser, Content: userPrompt},
					{Role: RoleModel, Content: previous[i].Content},
					{Role: RoleUser, Content: buildConsensusPrompt(i, previous)},
				}
			}
		}

		rr := fanOut(ctx, client, limiters, pricing, chain, round, buildMessages, carry, opts, progress)
		rr.Responses = applyTimeLimit(rr.Responses, opts.TimeLimit)
		results = append(results, rr)

		if ctx.Err() != nil {
			break
		}
	}

	return results
}

// buildConsensusPrompt builds the literal peer-revision prompt for model i,
// given the full set of peer responses from the prior round, in council
// order. Peer i's own answer and any non-OK peer are excluded; surviving
// peers are addressed by their real model id.
func buildConsensusPrompt(i int, peers []ModelResponse) string {
	var sb strings.Builder
	sb.WriteString("Consider your peers' views and revise your response if needed:\n\n")

	for j, peer := range peers {
		if j == i || peer.Status != StatusOK {
			continue
		}
		fmt.Fprintf(&sb, "**%s**:\n%s\n\n", modelID(peer.Model), peer.Content)
	}

	sb.WriteString("Based on these perspectives, would you like to revise or expand your answer?")
	return sb.String()
}
