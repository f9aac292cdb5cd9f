package council

// applyFirstN is the pure decision function behind the First-N Selector: a
// racing round (see fanOut) already performs the cutoff concurrently; this
// is the sequential re-statement used by tests and by callers that already
// hold a full RoundResult (e.g. replaying a fixture) and want to verify or
// re-apply the cutoff rule. It is a no-op when n <= 0 or n >= len(responses).
func applyFirstN(responses []ModelResponse, n int) []ModelResponse {
	if n <= 0 || n >= len(responses) {
		return responses
	}

	settled := 0
	out := make([]ModelResponse, len(responses))
	for i, r := range responses {
		if settled < n {
			out[i] = r
			if r.Status == StatusOK || r.Status == StatusError {
				settled++
			}
			continue
		}
		out[i] = ModelResponse{Model: r.Model, Status: StatusDropped, Err: errFirstNSentinel}
	}
	return out
}
