package planning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fantastic-router/fantastic-router/llm"
	"github.com/fantastic-router/fantastic-router/site"
)

// Understanding is the validated result of the single understanding call.
// Raw replies never flow past this type: the adapter either produces a
// valid Understanding or an UnderstandingError.
type Understanding struct {
	// ActionType is the classified intent.
	ActionType ActionType

	// EntityMentions are the surface strings the capability believes
	// refer to real-world objects.
	EntityMentions []string

	// CandidatePattern is the capability's best-guess pattern name,
	// verified against the configuration. Empty when none was suggested.
	CandidatePattern string

	// Reasoning is free text passed through to the plan.
	Reasoning string
}

// UnderstandingError reports a reply that failed validation. Partial holds
// whatever could still be salvaged (action type defaulted, suggested pattern
// cleared) so the orchestrator can fall back to best-effort pattern search
// instead of aborting the request.
type UnderstandingError struct {
	Reason  string
	Partial *Understanding
}

func (e *UnderstandingError) Error() string {
	return fmt.Sprintf("invalid understanding reply: %s", e.Reason)
}

// rawUnderstanding mirrors the reply schema the prompt instructs the
// capability to produce. Everything is optional here; validation decides
// what is acceptable.
type rawUnderstanding struct {
	ActionType       string   `json:"action_type"`
	EntityMentions   []string `json:"entity_mentions"`
	CandidatePattern string   `json:"candidate_pattern"`
	Reasoning        string   `json:"reasoning"`
}

// ParseUnderstanding validates and normalizes a raw reply against the
// configuration. Invalid replies fail with *UnderstandingError; the error
// always carries a salvaged partial, degraded as far as a bare NAVIGATE
// with no mentions when nothing in the reply is usable.
func ParseUnderstanding(content string, cfg *site.SiteConfiguration) (*Understanding, error) {
	extracted := llm.ExtractJSON(content)
	if extracted == "" {
		// Nothing extractable: fall back to a bare navigation search over
		// all patterns rather than failing the request outright.
		return nil, &UnderstandingError{
			Reason:  "no JSON object in reply",
			Partial: &Understanding{ActionType: ActionNavigate},
		}
	}

	var raw rawUnderstanding
	if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
		return nil, &UnderstandingError{
			Reason:  fmt.Sprintf("malformed JSON: %v", err),
			Partial: &Understanding{ActionType: ActionNavigate},
		}
	}

	mentions := make([]string, 0, len(raw.EntityMentions))
	for _, m := range raw.EntityMentions {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			mentions = append(mentions, trimmed)
		}
	}

	u := &Understanding{
		EntityMentions: mentions,
		Reasoning:      strings.TrimSpace(raw.Reasoning),
	}

	actionType, ok := ParseActionType(strings.ToUpper(strings.TrimSpace(raw.ActionType)))
	if !ok {
		u.ActionType = ActionNavigate
		return nil, &UnderstandingError{
			Reason:  fmt.Sprintf("missing or unknown action_type %q", raw.ActionType),
			Partial: u,
		}
	}
	u.ActionType = actionType

	pattern := strings.TrimSpace(raw.CandidatePattern)
	if pattern != "" {
		if _, ok := cfg.Pattern(pattern); !ok {
			// Unknown suggestion: salvage the rest of the reply.
			return nil, &UnderstandingError{
				Reason:  fmt.Sprintf("candidate_pattern %q is not configured", pattern),
				Partial: u,
			}
		}
		u.CandidatePattern = pattern
	}

	return u, nil
}
