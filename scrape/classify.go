package scrape

import "net/http"

// outcome is the retry policy decision for a single fetch attempt.
type outcome int

const (
	// outcomeSuccess means the attempt produced usable content.
	outcomeSuccess outcome = iota
	// outcomeRetry means a transient failure: retry within the budget.
	outcomeRetry
	// outcomeRetryRotate means a soft block: rotate identity, pause
	// briefly, and retry within the budget.
	outcomeRetryRotate
	// outcomeCooldown means server-side throttling: suspend the domain and
	// continue retrying within the budget.
	outcomeCooldown
	// outcomeAbandonURL means a permanent miss for this URL: move on to
	// the next candidate without retrying.
	outcomeAbandonURL
)

// classifyOutcome maps the result of one attempt (transport error, status
// code, body presence) to a retry policy decision. This is the only place
// HTTP failure categories are interpreted; callers of the fetcher never see
// raw status codes or transport errors.
func classifyOutcome(status int, err error, emptyBody bool) outcome {
	if err != nil {
		// Connection errors and timeouts are transient.
		return outcomeRetry
	}

	switch {
	case status >= 200 && status < 300:
		if emptyBody {
			return outcomeRetry
		}
		return outcomeSuccess
	case status == http.StatusForbidden:
		return outcomeRetryRotate
	case status == http.StatusNotFound:
		return outcomeAbandonURL
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return outcomeCooldown
	default:
		// Remaining 4xx/5xx responses are treated as transient.
		return outcomeRetry
	}
}
