package generation

import "strings"

// Provider success flags as reported by record-info and callbacks.
const (
	FlagPending       = 0
	FlagSuccess       = 1
	FlagCreateFailed  = 2
	FlagGenerateError = 3
)

// StatusPayload is the provider's view of a task, decoded from either a
// webhook body or a record-info response.
type StatusPayload struct {
	ProviderTaskID string
	SuccessFlag    int
	ResultURLs     []string
	ErrorMessage   string
}

// OutcomeKind tags the classified provider state.
type OutcomeKind int

const (
	OutcomeInProgress OutcomeKind = iota
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "in_progress"
	}
}

// Outcome is the tagged result of classifying a StatusPayload. URLs is set
// only for OutcomeSuccess and Message only for OutcomeFailure.
type Outcome struct {
	Kind    OutcomeKind
	URLs    []string
	Message string
}

const defaultFailureMessage = "generation failed"

// Classify maps a loosely populated provider payload onto an Outcome.
func Classify(p StatusPayload) Outcome {
	urls := cleanURLs(p.ResultURLs)
	if p.SuccessFlag == FlagSuccess && len(urls) > 0 {
		return Outcome{Kind: OutcomeSuccess, URLs: urls}
	}
	msg := strings.TrimSpace(p.ErrorMessage)
	if p.SuccessFlag == FlagCreateFailed || p.SuccessFlag == FlagGenerateError || msg != "" {
		if msg == "" {
			msg = defaultFailureMessage
		}
		return Outcome{Kind: OutcomeFailure, Message: msg}
	}
	return Outcome{Kind: OutcomeInProgress}
}

// cleanURLs trims, drops empties and removes duplicates while keeping order.
func cleanURLs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
