package council

import (
	"time"

	"github.com/shawkym/councilpipe/pkg/log"
)

// applyTimeLimit drops a successful response whose measured latency
// exceeded limit, replacing it with the time-limit sentinel. Error responses
// are always kept regardless of how long they took: they already failed for
// reasons unrelated to time, and demoting them would discard their real
// failure reason. A dropped response never contributes to consensus or
// synthesis input, but its latency is preserved for observability. limit <=
// 0 disables filtering.
//
// Latency is measured end-to-end by the Backend Client, which includes any
// retry waits the request needed; a model that was slow because it got
// rate-limited and retried is treated the same as one that was simply slow.
func applyTimeLimit(responses []ModelResponse, limit time.Duration) []ModelResponse {
	if limit <= 0 {
		return responses
	}

	out := make([]ModelResponse, len(responses))
	var dropped []string
	for i, r := range responses {
		if r.Status != StatusOK || r.Latency <= limit {
			out[i] = r
			continue
		}
		out[i] = ModelResponse{
			Model:   r.Model,
			Status:  StatusDropped,
			Latency: r.Latency,
			Err:     errTimeLimit,
		}
		dropped = append(dropped, r.Model.ID)
	}
	if len(dropped) > 0 {
		log.WithFields(map[string]interface{}{
			"models": dropped,
			"limit":  limit,
		}).Warn("time limit exceeded, dropping response")
	}
	return out
}
