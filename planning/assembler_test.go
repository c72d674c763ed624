package planning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func landlordMatch(id string, confidence float64) EntityMatch {
	return EntityMatch{
		ID:          id,
		DisplayName: "James Smith",
		SourceTable: "landlords",
		EntityKind:  "landlord",
		Mention:     "James Smith",
		Confidence:  confidence,
	}
}

func TestAssembleBindsEntity(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{
		ActionType:       ActionNavigate,
		EntityMentions:   []string{"James Smith"},
		CandidatePattern: "landlord_financials",
		Reasoning:        "user asked for landlord finances",
	}
	res := &Resolution{Matches: map[string][]EntityMatch{
		"James Smith": {landlordMatch("L1", 1.0)},
	}}

	plan, err := a.Assemble("show me the financials of James Smith", u, res, "", 3)
	require.NoError(t, err)

	assert.Equal(t, "/landlords/L1/financials", plan.Route)
	assert.Equal(t, ActionNavigate, plan.ActionType)
	assert.Equal(t, "landlord_financials", plan.MatchedPattern)
	assert.NotContains(t, plan.Route, "{")

	require.Len(t, plan.Parameters, 1)
	assert.Equal(t, "landlord_id", plan.Parameters[0].Name)
	assert.Equal(t, SourceEntity, plan.Parameters[0].Source)

	require.Len(t, plan.Entities, 1)
	assert.Equal(t, "L1", plan.Entities[0].ID)

	// Suggested pattern binds everything, so confidence reflects full
	// action agreement and a perfect entity match.
	assert.InDelta(t, 0.4*0.9+0.6*1.0, plan.Confidence, 1e-9)
}

func TestAssembleAlternatives(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{
		ActionType:       ActionNavigate,
		EntityMentions:   []string{"James Smith"},
		CandidatePattern: "landlord_financials",
	}
	res := &Resolution{Matches: map[string][]EntityMatch{
		"James Smith": {landlordMatch("L1", 0.9)},
	}}

	plan, err := a.Assemble("James Smith", u, res, "", 3)
	require.NoError(t, err)

	// landlord_detail binds the same entity and becomes an alternative.
	require.NotEmpty(t, plan.Alternatives)
	assert.Equal(t, "landlord_detail", plan.Alternatives[0].MatchedPattern)
	for _, alt := range plan.Alternatives {
		assert.Nil(t, alt.Alternatives, "alternatives must be flattened to one level")
		assert.LessOrEqual(t, alt.Confidence, plan.Confidence)
	}
}

func TestAssembleMaxAlternativesZero(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{ActionType: ActionNavigate, EntityMentions: []string{"James Smith"}}
	res := &Resolution{Matches: map[string][]EntityMatch{
		"James Smith": {landlordMatch("L1", 0.9)},
	}}

	plan, err := a.Assemble("James Smith", u, res, "", 0)
	require.NoError(t, err)
	assert.Empty(t, plan.Alternatives)
}

func TestAssembleRoleRestriction(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{ActionType: ActionNavigate, CandidatePattern: "admin_reports"}
	res := &Resolution{Matches: map[string][]EntityMatch{}}

	// Without the admin role the restricted pattern is skipped and
	// nothing else binds a pattern with no placeholders better.
	plan, err := a.Assemble("open the admin reports", u, res, "admin", 0)
	require.NoError(t, err)
	assert.Equal(t, "/admin/reports", plan.Route)

	_, err = a.Assemble("open the admin reports", u, res, "viewer", 0)
	require.Error(t, err)
}

func TestAssembleEnumAndDefault(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	property := EntityMatch{
		ID:          "P7",
		DisplayName: "12 Sunset Road",
		SourceTable: "properties",
		EntityKind:  "property",
		Mention:     "Sunset Road",
		Confidence:  0.8,
	}
	u := &Understanding{
		ActionType:       ActionCreate,
		EntityMentions:   []string{"Sunset Road"},
		CandidatePattern: "property_maintenance",
	}
	res := &Resolution{Matches: map[string][]EntityMatch{"Sunset Road": {property}}}

	t.Run("enum literal from query", func(t *testing.T) {
		plan, err := a.Assemble("report an urgent issue at Sunset Road", u, res, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "/properties/P7/maintenance/urgent", plan.Route)

		var priority RouteParameter
		for _, p := range plan.Parameters {
			if p.Name == "priority" {
				priority = p
			}
		}
		assert.Equal(t, SourceLiteral, priority.Source)
	})

	t.Run("default when query names no value", func(t *testing.T) {
		plan, err := a.Assemble("report an issue at Sunset Road", u, res, "", 0)
		require.NoError(t, err)
		assert.Equal(t, "/properties/P7/maintenance/normal", plan.Route)

		var priority RouteParameter
		for _, p := range plan.Parameters {
			if p.Name == "priority" {
				priority = p
			}
		}
		assert.Equal(t, SourceInferred, priority.Source)
	})
}

func TestAssembleUnresolvedEntity(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{
		ActionType:       ActionNavigate,
		EntityMentions:   []string{"Nobody Realperson"},
		CandidatePattern: "landlord_financials",
	}
	res := &Resolution{
		Matches:    map[string][]EntityMatch{},
		Unresolved: []string{"Nobody Realperson"},
	}

	_, err := a.Assemble("financials for Nobody Realperson", u, res, "", 3)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindUnresolvedEntity, perr.Kind)
	assert.Contains(t, perr.Message, "Nobody Realperson")
}

func TestAssembleUnresolvedMentionWithFormatVerbs(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	// Mentions are user text; percent signs must survive into the message.
	u := &Understanding{
		ActionType:     ActionNavigate,
		EntityMentions: []string{"100% occupancy"},
	}
	res := &Resolution{
		Matches:    map[string][]EntityMatch{},
		Unresolved: []string{"100% occupancy"},
	}

	_, err := a.Assemble("landlords at 100% occupancy", u, res, "", 3)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Message, "100% occupancy")
}

func TestAssembleNoMatchingRoute(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	// Everything resolved, but only entity-parameterized patterns exist
	// for tenants and no tenant was matched; role gate blocks the one
	// parameterless pattern.
	u := &Understanding{ActionType: ActionNavigate}
	res := &Resolution{Matches: map[string][]EntityMatch{}}

	_, err := a.Assemble("do something unroutable", u, res, "", 3)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindNoMatchingRoute, perr.Kind)
}

func TestAssembleDistinctEntitiesPerPlaceholder(t *testing.T) {
	cfg := testConfig(t)
	a := NewAssembler(cfg, testStructural(t, cfg))

	u := &Understanding{
		ActionType:       ActionNavigate,
		EntityMentions:   []string{"James Smith"},
		CandidatePattern: "landlord_financials",
	}
	res := &Resolution{Matches: map[string][]EntityMatch{
		"James Smith": {landlordMatch("L1", 0.95), landlordMatch("L2", 0.7)},
	}}

	plan, err := a.Assemble("James Smith", u, res, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "/landlords/L1/financials", plan.Route, "highest confidence candidate wins")
}
