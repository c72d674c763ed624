// Package planning implements the query planning engine: one understanding
// call, deterministic entity resolution, and confidence-scored route binding
// against a declarative site configuration.
package planning

// ActionType is the kind of navigation action a plan proposes.
type ActionType string

const (
	ActionNavigate ActionType = "NAVIGATE"
	ActionCreate   ActionType = "CREATE"
	ActionEdit     ActionType = "EDIT"
	ActionDelete   ActionType = "DELETE"
	ActionQuery    ActionType = "QUERY"
)

// ParseActionType maps a string onto a known action type.
func ParseActionType(s string) (ActionType, bool) {
	switch ActionType(s) {
	case ActionNavigate, ActionCreate, ActionEdit, ActionDelete, ActionQuery:
		return ActionType(s), true
	}
	return "", false
}

// Source records where a bound parameter value came from.
type Source string

const (
	SourceEntity   Source = "entity"   // bound from a resolved entity match
	SourceLiteral  Source = "literal"  // extracted verbatim from the query text
	SourceInferred Source = "inferred" // filled from a declared default
)

// EntityMatch is one resolved candidate for an entity mention.
type EntityMatch struct {
	ID            string         `json:"id"`
	DisplayName   string         `json:"display_name"`
	SourceTable   string         `json:"source_table"`
	EntityKind    string         `json:"entity_kind"`
	Mention       string         `json:"mention"`
	Confidence    float64        `json:"confidence"`
	RawAttributes map[string]any `json:"raw_attributes,omitempty"`
}

// RouteParameter is one bound placeholder in an assembled route.
type RouteParameter struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Type   string `json:"type"`
	Source Source `json:"source"`
}

// ActionPlan is the terminal planning artifact: a fully bound route with
// confidence, provenance, and ranked fallbacks. Plans are immutable once
// constructed. Entries in Alternatives never carry alternatives of their
// own; flattening to one level is enforced by construction.
type ActionPlan struct {
	ActionType     ActionType        `json:"action_type"`
	Route          string            `json:"route"`
	Confidence     float64           `json:"confidence"`
	Reasoning      string            `json:"reasoning"`
	Parameters     []RouteParameter  `json:"parameters"`
	Entities       []EntityMatch     `json:"entities"`
	QueryParams    map[string]string `json:"query_params,omitempty"`
	MatchedPattern string            `json:"matched_pattern"`
	Alternatives   []*ActionPlan     `json:"alternatives,omitempty"`
}

// WithoutAlternatives returns a shallow copy with the alternatives list
// cleared, used when a plan is embedded where nesting is not wanted.
func (p *ActionPlan) WithoutAlternatives() *ActionPlan {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Alternatives = nil
	return &clone
}
