package planning

import (
	"fmt"
	"strings"

	"github.com/fantastic-router/fantastic-router/site"
)

// CompiledPattern is a route pattern prepared for binding: placeholder
// names in order of appearance plus the surrounding static text.
// Compilation is pure and deterministic given the pattern string, so
// compiled patterns are shared through the structural cache.
type CompiledPattern struct {
	Def          site.RoutePattern
	Placeholders []string

	// literals[i] precedes placeholder i; the final element trails the
	// last placeholder. len(literals) == len(Placeholders)+1.
	literals []string
}

// CompilePattern splits a pattern template into static segments and
// placeholders.
func CompilePattern(def site.RoutePattern) (*CompiledPattern, error) {
	if strings.Count(def.Pattern, "{") != strings.Count(def.Pattern, "}") {
		return nil, fmt.Errorf("pattern %q: unbalanced braces", def.Name)
	}

	cp := &CompiledPattern{Def: def}
	rest := def.Pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			cp.literals = append(cp.literals, rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("pattern %q: unterminated placeholder", def.Name)
		}
		name := rest[open+1 : open+closing]
		if name == "" {
			return nil, fmt.Errorf("pattern %q: empty placeholder", def.Name)
		}
		cp.literals = append(cp.literals, rest[:open])
		cp.Placeholders = append(cp.Placeholders, name)
		rest = rest[open+closing+1:]
	}

	return cp, nil
}

// Bind substitutes every placeholder with its value. It fails if any
// placeholder has no value; the result never contains braces.
func (cp *CompiledPattern) Bind(values map[string]string) (string, error) {
	var b strings.Builder
	for i, name := range cp.Placeholders {
		b.WriteString(cp.literals[i])
		v, ok := values[name]
		if !ok || v == "" {
			return "", fmt.Errorf("placeholder {%s} has no value", name)
		}
		b.WriteString(v)
	}
	b.WriteString(cp.literals[len(cp.literals)-1])
	return b.String(), nil
}

// Structural holds the configuration-derived artifacts shared by all
// requests against one configuration version: compiled patterns and the
// entity declaration index used for deterministic tie-breaking.
type Structural struct {
	Version  string
	Patterns []*CompiledPattern
	ByName   map[string]*CompiledPattern

	// EntityRank maps entity kind to declaration position.
	EntityRank map[string]int
}

// BuildStructural compiles every pattern in the configuration.
func BuildStructural(cfg *site.SiteConfiguration) (*Structural, error) {
	s := &Structural{
		Version:    cfg.Version,
		ByName:     make(map[string]*CompiledPattern, len(cfg.RoutePatterns)),
		EntityRank: make(map[string]int, cfg.Entities.Len()),
	}

	for _, def := range cfg.RoutePatterns {
		cp, err := CompilePattern(def)
		if err != nil {
			return nil, wrapError(KindConfiguration, err, "compile pattern %q", def.Name)
		}
		s.Patterns = append(s.Patterns, cp)
		s.ByName[def.Name] = cp
	}

	for i, name := range cfg.Entities.Names() {
		s.EntityRank[name] = i
	}

	return s, nil
}
