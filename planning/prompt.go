package planning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fantastic-router/fantastic-router/site"
)

// promptColumnLimit caps how many columns per table are embedded so large
// schemas do not dominate the prompt.
const promptColumnLimit = 8

// BuildPrompt constructs the single comprehensive analysis prompt. It is a
// pure function of its inputs: identical arguments always produce an
// identical string, which the request cache key derivation relies on.
// It fails when the configuration has no route patterns, since no binding
// would be possible.
func BuildPrompt(query string, cfg *site.SiteConfiguration, callerContext map[string]string, userRole string) (string, error) {
	if len(cfg.RoutePatterns) == 0 {
		return "", newError(KindConfiguration, "site configuration has no route patterns")
	}

	var b strings.Builder

	b.WriteString("You are an expert at analyzing user queries for web application routing.\n\n")
	fmt.Fprintf(&b, "DOMAIN: %s\n", cfg.Domain)
	fmt.Fprintf(&b, "USER QUERY: %q\n", query)
	if userRole != "" {
		fmt.Fprintf(&b, "USER ROLE: %s\n", userRole)
	}
	writeCallerContext(&b, callerContext)

	b.WriteString("\nKNOWN ENTITY KINDS:\n")
	for _, name := range cfg.Entities.Names() {
		def, _ := cfg.Entities.Get(name)
		fmt.Fprintf(&b, "- %s (table %s; searched by %s)",
			name, def.Table, strings.Join(def.SearchFields, ", "))
		if len(def.Aliases) > 0 {
			fmt.Fprintf(&b, " aka %s", strings.Join(def.Aliases, ", "))
		}
		b.WriteByte('\n')
	}

	writeSchemaSummary(&b, cfg.DatabaseSchema)

	b.WriteString("\nAVAILABLE ROUTE PATTERNS:\n")
	for _, p := range cfg.RoutePatterns {
		fmt.Fprintf(&b, "- %s: %s", p.Name, p.Pattern)
		if p.Description != "" {
			fmt.Fprintf(&b, " — %s", p.Description)
		}
		b.WriteByte('\n')
		if len(p.Placeholders()) > 0 {
			fmt.Fprintf(&b, "  placeholders: %s\n", strings.Join(p.Placeholders(), ", "))
		}
		for i, example := range p.IntentPatterns {
			if i == 2 {
				break
			}
			fmt.Fprintf(&b, "  example: %q\n", example)
		}
	}

	b.WriteString(`
TASK: Analyze the query and reply with exactly one JSON object:
{
    "action_type": "NAVIGATE|CREATE|EDIT|DELETE|QUERY",
    "entity_mentions": ["surface text of each real-world object mentioned"],
    "candidate_pattern": "name of the best matching route pattern, or null",
    "reasoning": "one or two sentences explaining the choice"
}

Rules:
- action_type is required and must be one of the five values.
- entity_mentions contains the exact text spans from the query, not guesses at IDs.
- candidate_pattern must be one of the pattern names listed above, or null.
- Reply with JSON only. No markdown, no extra text.
`)

	return b.String(), nil
}

// writeCallerContext embeds caller context with keys sorted so the prompt
// stays deterministic regardless of map iteration order.
func writeCallerContext(b *strings.Builder, ctx map[string]string) {
	if len(ctx) == 0 {
		return
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("CALLER CONTEXT:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, ctx[k])
	}
}

func writeSchemaSummary(b *strings.Builder, schema site.DatabaseSchema) {
	if len(schema.Tables) == 0 {
		return
	}

	names := make([]string, 0, len(schema.Tables))
	for name := range schema.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("\nDATABASE SCHEMA:\n")
	for _, name := range names {
		table := schema.Tables[name]
		cols := make([]string, 0, promptColumnLimit)
		for i, col := range table.Columns {
			if i == promptColumnLimit {
				break
			}
			cols = append(cols, col.Name)
		}
		fmt.Fprintf(b, "- %s: %s\n", name, strings.Join(cols, ", "))
		if table.Description != "" {
			fmt.Fprintf(b, "  purpose: %s\n", table.Description)
		}
	}
}
