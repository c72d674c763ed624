// Package site provides the configuration model for the router: entity
// definitions, route patterns, and the database schema description that feeds
// prompt construction. Configurations are immutable after load and published
// as versioned snapshots through a Store.
package site

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParameterType classifies a route parameter value.
type ParameterType string

const (
	ParameterString  ParameterType = "string"
	ParameterInteger ParameterType = "integer"
	ParameterUUID    ParameterType = "uuid"
	ParameterSlug    ParameterType = "slug"
	ParameterEnum    ParameterType = "enum"
)

// ParameterSpec declares how a route placeholder is typed and resolved.
type ParameterSpec struct {
	// Type is the parameter value type. Defaults to "string".
	Type ParameterType `yaml:"type"`

	// Description is a human-readable explanation used in prompt context.
	Description string `yaml:"description"`

	// Entity names the entity kind whose resolved match fills this
	// parameter. Empty means the value is extracted from the query text.
	Entity string `yaml:"entity,omitempty"`

	// Examples are sample values, used both for prompt context and for
	// literal extraction from the query.
	Examples []string `yaml:"examples,omitempty"`

	// EnumValues restricts allowed values when Type is "enum".
	EnumValues []string `yaml:"enum_values,omitempty"`

	// Default fills the parameter when nothing can be extracted from the
	// query. Parameters bound from a default are reported as "inferred".
	Default string `yaml:"default,omitempty"`
}

// RoutePattern is a parameterized URL template the planner can bind.
type RoutePattern struct {
	// Pattern is the path template, e.g. "/landlords/{landlord_id}/financials".
	Pattern string `yaml:"pattern"`

	// Name uniquely identifies the pattern within a configuration.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Action is the natural action type for this pattern (NAVIGATE, CREATE,
	// EDIT, DELETE, QUERY). Defaults to NAVIGATE.
	Action string `yaml:"action,omitempty"`

	// IntentPatterns are example phrasings given to the understanding
	// capability as context. They are never executed.
	IntentPatterns []string `yaml:"intent_patterns,omitempty"`

	// Parameters maps placeholder names to their specs.
	Parameters map[string]ParameterSpec `yaml:"parameters,omitempty"`

	// QueryParams declares optional URL query parameters.
	QueryParams map[string]ParameterSpec `yaml:"query_params,omitempty"`

	// RequiredRole restricts the pattern to callers holding this role.
	// Empty means unrestricted. The engine only matches the caller's role
	// label against it; policy enforcement lives elsewhere.
	RequiredRole string `yaml:"required_role,omitempty"`
}

// Placeholders returns the placeholder names in order of appearance.
func (p RoutePattern) Placeholders() []string {
	matches := placeholderPattern.FindAllStringSubmatch(p.Pattern, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// EntityDefinition describes one kind of real-world object the router can
// resolve mentions against.
type EntityDefinition struct {
	// Name is the entity kind, filled from the map key during load.
	Name string `yaml:"-"`

	// Table is the physical table holding records of this kind.
	Table string `yaml:"table"`

	Description string `yaml:"description,omitempty"`

	// SearchFields are probed in order for fuzzy matches.
	SearchFields []string `yaml:"search_fields"`

	// DisplayField holds the human-readable name of a record.
	DisplayField string `yaml:"display_field"`

	// IDField is the primary key column. Defaults to "id".
	IDField string `yaml:"unique_identifier,omitempty"`

	// Aliases are alternative names for this entity kind, used in prompts.
	Aliases []string `yaml:"aliases,omitempty"`
}

// EntitySet holds entity definitions and preserves their declaration order,
// which the resolver uses for deterministic tie-breaking.
type EntitySet struct {
	defs  map[string]EntityDefinition
	order []string
}

// NewEntitySet builds an EntitySet from definitions in the given order.
// Intended for tests and programmatic configuration.
func NewEntitySet(defs ...EntityDefinition) EntitySet {
	s := EntitySet{defs: make(map[string]EntityDefinition, len(defs))}
	for _, d := range defs {
		if _, dup := s.defs[d.Name]; !dup {
			s.order = append(s.order, d.Name)
		}
		s.defs[d.Name] = d
	}
	return s
}

// UnmarshalYAML decodes a YAML mapping while recording key order.
func (s *EntitySet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("entities must be a mapping, got %s", nodeKind(node))
	}
	s.defs = make(map[string]EntityDefinition, len(node.Content)/2)
	s.order = s.order[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("decode entity name: %w", err)
		}
		var def EntityDefinition
		if err := node.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("decode entity %q: %w", name, err)
		}
		def.Name = name
		if _, dup := s.defs[name]; dup {
			return fmt.Errorf("duplicate entity %q", name)
		}
		s.defs[name] = def
		s.order = append(s.order, name)
	}
	return nil
}

// Get returns the definition for the named entity kind.
func (s EntitySet) Get(name string) (EntityDefinition, bool) {
	def, ok := s.defs[name]
	return def, ok
}

// Names returns entity kind names in declaration order.
func (s EntitySet) Names() []string {
	return s.order
}

// Len returns the number of defined entity kinds.
func (s EntitySet) Len() int {
	return len(s.order)
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "unknown"
	}
}

// ColumnSchema describes one column, used only for prompt context.
type ColumnSchema struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Nullable    bool   `yaml:"nullable"`
	Description string `yaml:"description,omitempty"`
}

// TableSchema describes one table, used only for prompt context.
type TableSchema struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	PrimaryKey  string         `yaml:"primary_key,omitempty"`
	Columns     []ColumnSchema `yaml:"columns"`
}

// DatabaseSchema is the schema description embedded into prompts. The engine
// never executes DDL or derives behavior from it.
type DatabaseSchema struct {
	Tables        map[string]TableSchema `yaml:"tables,omitempty"`
	Relationships map[string]string      `yaml:"relationships,omitempty"`
}

// SiteConfiguration is one immutable snapshot of the declarative site
// description. Version is a content hash set during load; it keys the
// structural cache.
type SiteConfiguration struct {
	Domain  string `yaml:"domain"`
	BaseURL string `yaml:"base_url"`

	Entities      EntitySet      `yaml:"entities"`
	RoutePatterns []RoutePattern `yaml:"route_patterns"`

	DatabaseSchema DatabaseSchema `yaml:"database_schema,omitempty"`

	Version string `yaml:"-"`
}

// Pattern returns the route pattern with the given name.
func (c *SiteConfiguration) Pattern(name string) (RoutePattern, bool) {
	for _, p := range c.RoutePatterns {
		if p.Name == name {
			return p, true
		}
	}
	return RoutePattern{}, false
}

// Validate checks structural integrity: at least one pattern, unique pattern
// names, declared parameters for every placeholder, and entity references
// that resolve to defined kinds.
func (c *SiteConfiguration) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(c.RoutePatterns) == 0 {
		return fmt.Errorf("at least one route pattern is required")
	}

	seen := make(map[string]bool, len(c.RoutePatterns))
	for i, p := range c.RoutePatterns {
		if p.Name == "" {
			return fmt.Errorf("route_patterns[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("route_patterns[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !strings.HasPrefix(p.Pattern, "/") {
			return fmt.Errorf("pattern %q: path must start with /", p.Name)
		}
		if strings.Count(p.Pattern, "{") != strings.Count(p.Pattern, "}") {
			return fmt.Errorf("pattern %q: unbalanced braces in %q", p.Name, p.Pattern)
		}
		if p.Action != "" && !validAction(p.Action) {
			return fmt.Errorf("pattern %q: unknown action %q", p.Name, p.Action)
		}

		for _, ph := range p.Placeholders() {
			spec, ok := p.Parameters[ph]
			if !ok {
				return fmt.Errorf("pattern %q: placeholder {%s} has no parameter spec", p.Name, ph)
			}
			if spec.Entity != "" {
				if _, ok := c.Entities.Get(spec.Entity); !ok {
					return fmt.Errorf("pattern %q: parameter %q references unknown entity %q", p.Name, ph, spec.Entity)
				}
			}
			if spec.Type == ParameterEnum && len(spec.EnumValues) == 0 {
				return fmt.Errorf("pattern %q: enum parameter %q has no enum_values", p.Name, ph)
			}
		}
	}

	for _, name := range c.Entities.Names() {
		def, _ := c.Entities.Get(name)
		if def.Table == "" {
			return fmt.Errorf("entity %q: table is required", name)
		}
		if len(def.SearchFields) == 0 {
			return fmt.Errorf("entity %q: at least one search field is required", name)
		}
		if def.DisplayField == "" {
			return fmt.Errorf("entity %q: display_field is required", name)
		}
	}

	return nil
}

func validAction(s string) bool {
	switch s {
	case "NAVIGATE", "CREATE", "EDIT", "DELETE", "QUERY":
		return true
	}
	return false
}
