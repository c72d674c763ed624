package planning

import (
	"errors"
	"testing"
)

func TestParseUnderstanding(t *testing.T) {
	cfg := testConfig(t)

	u, err := ParseUnderstanding(`{
		"action_type": "NAVIGATE",
		"entity_mentions": ["James Smith", "  ", "Sunset Apartments"],
		"candidate_pattern": "landlord_financials",
		"reasoning": "user wants landlord finances"
	}`, cfg)
	if err != nil {
		t.Fatalf("ParseUnderstanding() error = %v", err)
	}

	if u.ActionType != ActionNavigate {
		t.Errorf("expected NAVIGATE, got %s", u.ActionType)
	}
	if len(u.EntityMentions) != 2 {
		t.Errorf("blank mentions should be dropped, got %v", u.EntityMentions)
	}
	if u.CandidatePattern != "landlord_financials" {
		t.Errorf("unexpected pattern %q", u.CandidatePattern)
	}
}

func TestParseUnderstandingFencedReply(t *testing.T) {
	cfg := testConfig(t)

	content := "Here is my analysis:\n```json\n{\"action_type\": \"query\", \"entity_mentions\": [\"rent\"]}\n```"
	u, err := ParseUnderstanding(content, cfg)
	if err != nil {
		t.Fatalf("ParseUnderstanding() error = %v", err)
	}
	if u.ActionType != ActionQuery {
		t.Errorf("action type should be case-normalized, got %s", u.ActionType)
	}
}

func TestParseUnderstandingNoJSON(t *testing.T) {
	cfg := testConfig(t)

	_, err := ParseUnderstanding("I don't know what you mean.", cfg)
	var uerr *UnderstandingError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnderstandingError, got %v", err)
	}
	if uerr.Partial == nil {
		t.Fatal("even a JSON-free reply salvages a bare navigation fallback")
	}
	if uerr.Partial.ActionType != ActionNavigate {
		t.Errorf("fallback action type should be NAVIGATE, got %s", uerr.Partial.ActionType)
	}
	if len(uerr.Partial.EntityMentions) != 0 {
		t.Errorf("fallback should carry no mentions, got %v", uerr.Partial.EntityMentions)
	}
	if uerr.Partial.CandidatePattern != "" {
		t.Errorf("fallback should suggest no pattern, got %q", uerr.Partial.CandidatePattern)
	}
}

func TestParseUnderstandingMalformedJSON(t *testing.T) {
	cfg := testConfig(t)

	_, err := ParseUnderstanding(`{"action_type": "NAVIGATE", "entity_mentions": [}`, cfg)
	var uerr *UnderstandingError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnderstandingError, got %v", err)
	}
	if uerr.Partial == nil || uerr.Partial.ActionType != ActionNavigate {
		t.Errorf("malformed JSON should salvage a bare navigation fallback, got %+v", uerr.Partial)
	}
}

func TestParseUnderstandingUnknownActionType(t *testing.T) {
	cfg := testConfig(t)

	_, err := ParseUnderstanding(`{"action_type": "TELEPORT", "entity_mentions": ["James"]}`, cfg)
	var uerr *UnderstandingError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnderstandingError, got %v", err)
	}
	if uerr.Partial == nil {
		t.Fatal("expected salvaged partial")
	}
	if uerr.Partial.ActionType != ActionNavigate {
		t.Errorf("salvaged action type should default to NAVIGATE, got %s", uerr.Partial.ActionType)
	}
	if len(uerr.Partial.EntityMentions) != 1 {
		t.Errorf("mentions should survive salvage, got %v", uerr.Partial.EntityMentions)
	}
}

func TestParseUnderstandingUnknownPattern(t *testing.T) {
	cfg := testConfig(t)

	_, err := ParseUnderstanding(`{
		"action_type": "NAVIGATE",
		"entity_mentions": ["James Smith"],
		"candidate_pattern": "not_a_real_pattern"
	}`, cfg)
	var uerr *UnderstandingError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnderstandingError, got %v", err)
	}
	if uerr.Partial == nil {
		t.Fatal("expected salvaged partial")
	}
	if uerr.Partial.CandidatePattern != "" {
		t.Error("unknown pattern suggestion should be cleared in the partial")
	}
	if uerr.Partial.ActionType != ActionNavigate {
		t.Errorf("valid action type should survive salvage, got %s", uerr.Partial.ActionType)
	}
}
