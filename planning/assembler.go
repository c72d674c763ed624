package planning

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fantastic-router/fantastic-router/site"
)

// Action-type agreement weights. The bound-entity confidence dominates the
// plan score; action-type agreement between the language-model understanding
// and the pattern's declared action contributes the rest.
const (
	actionWeight        = 0.4
	entityWeight        = 0.6
	actionAgreeScore    = 0.9
	actionDisagreeScore = 0.6
)

var integerTokenPattern = regexp.MustCompile(`\b\d+\b`)

// Assembler binds understandings and resolved entities against the compiled
// route patterns and produces ranked action plans.
type Assembler struct {
	cfg        *site.SiteConfiguration
	structural *Structural
}

// NewAssembler creates an assembler over one configuration snapshot and its
// compiled patterns.
func NewAssembler(cfg *site.SiteConfiguration, structural *Structural) *Assembler {
	return &Assembler{cfg: cfg, structural: structural}
}

// attempt is one successfully bound pattern awaiting ranking.
type attempt struct {
	plan  *ActionPlan
	order int
}

// Assemble tries every eligible pattern, scores the ones that bind fully,
// and returns the best plan with up to maxAlternatives runner-ups attached.
// Patterns are tried in a deterministic order: the understanding's suggested
// pattern first, then declaration order.
func (a *Assembler) Assemble(query string, u *Understanding, res *Resolution, userRole string, maxAlternatives int) (*ActionPlan, error) {
	queryText := NormalizeText(query)
	var attempts []attempt

	for order, pattern := range a.candidateOrder(u.CandidatePattern) {
		if pattern.Def.RequiredRole != "" && pattern.Def.RequiredRole != userRole {
			continue
		}
		plan, ok := a.bind(pattern, u, res, queryText)
		if !ok {
			continue
		}
		attempts = append(attempts, attempt{plan: plan, order: order})
	}

	if len(attempts) == 0 {
		if len(res.Unresolved) > 0 {
			return nil, newError(KindUnresolvedEntity,
				"could not resolve: %s", strings.Join(res.Unresolved, ", "))
		}
		return nil, newError(KindNoMatchingRoute, "no route pattern could be bound for this query")
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		if attempts[i].plan.Confidence != attempts[j].plan.Confidence {
			return attempts[i].plan.Confidence > attempts[j].plan.Confidence
		}
		return attempts[i].order < attempts[j].order
	})

	primary := attempts[0].plan
	for _, alt := range attempts[1:] {
		if len(primary.Alternatives) >= maxAlternatives {
			break
		}
		primary.Alternatives = append(primary.Alternatives, alt.plan.WithoutAlternatives())
	}
	return primary, nil
}

// candidateOrder yields the suggested pattern first, then the rest in
// declaration order.
func (a *Assembler) candidateOrder(suggested string) []*CompiledPattern {
	out := make([]*CompiledPattern, 0, len(a.structural.Patterns))
	if suggested != "" {
		if p, ok := a.structural.ByName[suggested]; ok {
			out = append(out, p)
		}
	}
	for _, p := range a.structural.Patterns {
		if suggested != "" && p.Def.Name == suggested {
			continue
		}
		out = append(out, p)
	}
	return out
}

// bind fills every placeholder of the pattern or reports failure. Each
// resolved entity candidate is consumed at most once per attempt, so a
// pattern with two placeholders of the same kind binds two distinct records.
func (a *Assembler) bind(pattern *CompiledPattern, u *Understanding, res *Resolution, queryText string) (*ActionPlan, bool) {
	values := make(map[string]string, len(pattern.Placeholders))
	params := make([]RouteParameter, 0, len(pattern.Placeholders))
	var bound []EntityMatch
	consumed := make(map[string]bool)

	for _, name := range pattern.Placeholders {
		spec := pattern.Def.Parameters[name]

		if spec.Entity != "" {
			match, ok := pickEntity(res, spec.Entity, consumed)
			if !ok {
				return nil, false
			}
			consumed[match.SourceTable+":"+match.ID] = true
			values[name] = match.ID
			params = append(params, RouteParameter{Name: name, Value: match.ID, Type: string(spec.Type), Source: SourceEntity})
			bound = append(bound, match)
			continue
		}

		if value, source, ok := bindLiteral(spec, queryText); ok {
			values[name] = value
			params = append(params, RouteParameter{Name: name, Value: value, Type: string(spec.Type), Source: source})
			continue
		}

		return nil, false
	}

	route, err := pattern.Bind(values)
	if err != nil {
		return nil, false
	}

	plan := &ActionPlan{
		ActionType:     ActionType(pattern.Def.Action),
		Route:          route,
		Confidence:     scorePlan(u, pattern, bound),
		Reasoning:      u.Reasoning,
		Parameters:     params,
		Entities:       bound,
		QueryParams:    defaultQueryParams(pattern.Def.QueryParams),
		MatchedPattern: pattern.Def.Name,
	}
	return plan, true
}

// defaultQueryParams carries declared query-parameter defaults onto the
// plan. Parameters without a default are omitted.
func defaultQueryParams(specs map[string]site.ParameterSpec) map[string]string {
	var out map[string]string
	for name, spec := range specs {
		if spec.Default == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = spec.Default
	}
	return out
}

// pickEntity returns the highest-confidence unconsumed candidate of the
// requested kind across all mentions. Mentions are scanned in sorted order
// so the choice does not depend on map iteration.
func pickEntity(res *Resolution, kind string, consumed map[string]bool) (EntityMatch, bool) {
	mentions := make([]string, 0, len(res.Matches))
	for m := range res.Matches {
		mentions = append(mentions, m)
	}
	sort.Strings(mentions)

	var best EntityMatch
	found := false
	for _, mention := range mentions {
		for _, m := range res.Matches[mention] {
			if m.EntityKind != kind || consumed[m.SourceTable+":"+m.ID] {
				continue
			}
			if !found || m.Confidence > best.Confidence {
				best = m
				found = true
			}
		}
	}
	return best, found
}

// bindLiteral fills a non-entity placeholder from the query text, falling
// back to the declared default.
func bindLiteral(spec site.ParameterSpec, queryText string) (string, Source, bool) {
	switch spec.Type {
	case site.ParameterEnum:
		for _, v := range spec.EnumValues {
			if containsToken(queryText, NormalizeText(v)) {
				return v, SourceLiteral, true
			}
		}
	case site.ParameterInteger:
		if tok := integerTokenPattern.FindString(queryText); tok != "" {
			return tok, SourceLiteral, true
		}
	default:
		for _, ex := range spec.Examples {
			if containsToken(queryText, NormalizeText(ex)) {
				return ex, SourceLiteral, true
			}
		}
	}

	if spec.Default != "" {
		return spec.Default, SourceInferred, true
	}
	return "", "", false
}

// containsToken reports whether needle appears in haystack on token
// boundaries, so "rent" does not match inside "current".
func containsToken(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	idx := strings.Index(haystack, needle)
	for idx >= 0 {
		beforeOK := idx == 0 || haystack[idx-1] == ' '
		end := idx + len(needle)
		afterOK := end == len(haystack) || haystack[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(haystack[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

// scorePlan combines action-type agreement with the mean confidence of the
// bound entities. A plan with no entity bindings scores on agreement alone.
func scorePlan(u *Understanding, pattern *CompiledPattern, bound []EntityMatch) float64 {
	actionConf := actionDisagreeScore
	if string(u.ActionType) == pattern.Def.Action {
		actionConf = actionAgreeScore
	}
	if len(bound) == 0 {
		return actionConf
	}
	sum := 0.0
	for _, m := range bound {
		sum += m.Confidence
	}
	return actionWeight*actionConf + entityWeight*(sum/float64(len(bound)))
}
