package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fantastic-router/fantastic-router/datastore"
	"github.com/fantastic-router/fantastic-router/site"
)

// Resolver defaults. Candidates scoring below the acceptance threshold are
// discarded entirely rather than surfaced as low-confidence noise.
const (
	DefaultAcceptanceThreshold = 0.55
	DefaultLookupTimeout       = 5 * time.Second
	DefaultMaxCandidates       = 5
)

// Resolution is the outcome of resolving all mentions of one request.
type Resolution struct {
	// Matches holds accepted candidates per mention, ranked by confidence
	// descending with deterministic tie-breaks.
	Matches map[string][]EntityMatch

	// Unresolved lists mentions with zero candidates above threshold.
	Unresolved []string

	// LookupTimedOut reports whether any datastore lookup hit its
	// deadline, so failures can be attributed to the datastore rather
	// than to the query.
	LookupTimedOut bool
}

// Resolver turns entity mentions into ranked EntityMatch candidates by
// probing the datastore across the configured search fields.
type Resolver struct {
	store         datastore.Client
	threshold     float64
	lookupTimeout time.Duration
	maxCandidates int
	logger        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAcceptanceThreshold overrides the minimum confidence for a candidate
// to be kept.
func WithAcceptanceThreshold(t float64) ResolverOption {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// WithLookupTimeout overrides the per-lookup datastore timeout.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.lookupTimeout = d
	}
}

// WithMaxCandidates caps how many candidates are kept per mention.
func WithMaxCandidates(n int) ResolverOption {
	return func(r *Resolver) {
		r.maxCandidates = n
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over the given datastore client.
func NewResolver(store datastore.Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:         store,
		threshold:     DefaultAcceptanceThreshold,
		lookupTimeout: DefaultLookupTimeout,
		maxCandidates: DefaultMaxCandidates,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up every mention concurrently and joins the results before
// returning. Completion order cannot affect ranking: candidates are sorted
// only after all lookups for a mention finish or time out. A failed or
// timed-out lookup degrades that mention to unresolved instead of failing
// the request.
func (r *Resolver) Resolve(ctx context.Context, mentions []string, cfg *site.SiteConfiguration, structural *Structural) (*Resolution, error) {
	res := &Resolution{Matches: make(map[string][]EntityMatch, len(mentions))}
	if len(mentions) == 0 {
		return res, nil
	}

	perMention := make([][]EntityMatch, len(mentions))
	timedOut := make([]bool, len(mentions))

	g, gctx := errgroup.WithContext(ctx)
	for i, mention := range mentions {
		g.Go(func() error {
			matches, hitDeadline := r.resolveMention(gctx, mention, cfg, structural)
			perMention[i] = matches
			timedOut[i] = hitDeadline
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, mention := range mentions {
		if _, dup := res.Matches[mention]; dup {
			continue
		}
		if timedOut[i] {
			res.LookupTimedOut = true
		}
		if len(perMention[i]) == 0 {
			res.Unresolved = append(res.Unresolved, mention)
			continue
		}
		res.Matches[mention] = perMention[i]
	}

	return res, nil
}

// resolveMention searches every entity kind for one mention and returns the
// ranked, deduplicated candidates above threshold.
func (r *Resolver) resolveMention(ctx context.Context, mention string, cfg *site.SiteConfiguration, structural *Structural) ([]EntityMatch, bool) {
	var all []EntityMatch
	hitDeadline := false

	for _, kind := range cfg.Entities.Names() {
		def, _ := cfg.Entities.Get(kind)

		lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
		records, err := r.store.Search(lookupCtx, mention, []string{def.Table}, def.SearchFields, r.maxCandidates*2)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				hitDeadline = true
			}
			r.logger.Warn("Entity lookup failed",
				"mention", mention,
				"entity", kind,
				"table", def.Table,
				"error", err)
			continue
		}

		for _, record := range records {
			if match, ok := r.scoreRecord(mention, def, record); ok {
				all = append(all, match)
			}
		}
	}

	all = dedupeMatches(all)
	rankMatches(all, structural)

	if len(all) > r.maxCandidates {
		all = all[:r.maxCandidates]
	}
	return all, hitDeadline
}

// scoreRecord computes the record's confidence as the maximum similarity
// across its searched fields. Records missing an ID or scoring below the
// acceptance threshold are dropped.
func (r *Resolver) scoreRecord(mention string, def site.EntityDefinition, record datastore.Record) (EntityMatch, bool) {
	score := 0.0
	for _, field := range def.SearchFields {
		value, ok := record.Fields[field]
		if !ok || value == nil {
			continue
		}
		if s := Similarity(mention, fmt.Sprint(value)); s > score {
			score = s
		}
	}
	if score < r.threshold {
		return EntityMatch{}, false
	}

	id := stringField(record.Fields, def.IDField)
	if id == "" {
		return EntityMatch{}, false
	}

	display := stringField(record.Fields, def.DisplayField)
	if display == "" {
		display = id
	}

	return EntityMatch{
		ID:            id,
		DisplayName:   display,
		SourceTable:   record.Table,
		EntityKind:    def.Name,
		Mention:       mention,
		Confidence:    score,
		RawAttributes: record.Fields,
	}, true
}

// rankMatches sorts candidates by confidence descending. Ties break by the
// entity kind's declaration order in the configuration, then by ID, so the
// ranking is reproducible run to run.
func rankMatches(matches []EntityMatch, structural *Structural) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		ri := structural.EntityRank[matches[i].EntityKind]
		rj := structural.EntityRank[matches[j].EntityKind]
		if ri != rj {
			return ri < rj
		}
		return matches[i].ID < matches[j].ID
	})
}

func dedupeMatches(matches []EntityMatch) []EntityMatch {
	best := make(map[string]int, len(matches))
	var out []EntityMatch
	for _, m := range matches {
		key := m.SourceTable + ":" + m.ID
		if idx, seen := best[key]; seen {
			if m.Confidence > out[idx].Confidence {
				out[idx] = m
			}
			continue
		}
		best[key] = len(out)
		out = append(out, m)
	}
	return out
}

func stringField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
