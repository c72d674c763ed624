package planning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fantastic-router/fantastic-router/llm"
	"github.com/fantastic-router/fantastic-router/site"
)

// Request limits and defaults.
const (
	MaxQueryLength           = 500
	MaxAlternativesCeiling   = 10
	DefaultMaxAlternatives   = 3
	DefaultUnderstandTimeout = 30 * time.Second
	understandingTemp        = 0.1
)

// Performance level boundaries in milliseconds.
const (
	perfExcellentBelow  = 1000
	perfGoodBelow       = 3000
	perfAcceptableBelow = 5000
	perfSlowBelow       = 10000
)

// AnalysisClient is the slice of the language-model client the planner
// needs. *llm.Client satisfies it.
type AnalysisClient interface {
	Analyze(ctx context.Context, prompt string, temperature float64) (*llm.Response, error)
}

// PlanRequest is one planning request.
type PlanRequest struct {
	Query           string            `json:"query"`
	UserID          string            `json:"user_id,omitempty"`
	UserRole        string            `json:"user_role,omitempty"`
	Context         map[string]string `json:"context,omitempty"`
	MaxAlternatives int               `json:"max_alternatives"`
}

// Performance describes how one request performed.
type Performance struct {
	DurationMs int64  `json:"duration_ms"`
	Level      string `json:"level"`
	LLMCalls   int    `json:"llm_calls"`
	CacheHits  int    `json:"cache_hits"`
}

// PlanResult is the outcome of one planning request. Success false with an
// ErrorKind is a handled planning failure, not a transport error.
type PlanResult struct {
	Success     bool        `json:"success"`
	Plan        *ActionPlan `json:"action_plan,omitempty"`
	ErrorKind   ErrorKind   `json:"error_kind,omitempty"`
	Message     string      `json:"message,omitempty"`
	Performance Performance `json:"performance"`
	CacheHit    bool        `json:"cache_hit"`
	CacheType   string      `json:"cache_type,omitempty"`
	RequestID   string      `json:"request_id"`
}

// Observer is notified after every planning request, successful or not.
// Implementations must not block; the planner calls them synchronously.
type Observer interface {
	PlanCompleted(ctx context.Context, req *PlanRequest, result *PlanResult)
}

// Planner turns one natural-language query into a bound navigation route
// using a single language-model call plus deterministic datastore lookups.
type Planner struct {
	store             *site.Store
	analysis          AnalysisClient
	resolver          *Resolver
	requestCache      RequestCache
	structural        *structuralCache
	observers         []Observer
	understandTimeout time.Duration
	logger            *slog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithRequestCache swaps the request cache, e.g. for a Redis-backed one.
func WithRequestCache(cache RequestCache) PlannerOption {
	return func(p *Planner) {
		p.requestCache = cache
	}
}

// WithStructuralTTL overrides how long compiled patterns are reused before
// a forced rebuild.
func WithStructuralTTL(ttl time.Duration) PlannerOption {
	return func(p *Planner) {
		p.structural = newStructuralCache(ttl)
	}
}

// WithUnderstandingTimeout bounds the language-model call.
func WithUnderstandingTimeout(d time.Duration) PlannerOption {
	return func(p *Planner) {
		p.understandTimeout = d
	}
}

// WithObserver registers an observer for completed requests.
func WithObserver(obs Observer) PlannerOption {
	return func(p *Planner) {
		p.observers = append(p.observers, obs)
	}
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner wires a planner over the configuration store, the
// language-model client, and the entity resolver. Configuration replacement
// invalidates both caches: compiled patterns are version-bound and cached
// plans may reference routes that no longer exist.
func NewPlanner(store *site.Store, analysis AnalysisClient, resolver *Resolver, opts ...PlannerOption) *Planner {
	p := &Planner{
		store:             store,
		analysis:          analysis,
		resolver:          resolver,
		requestCache:      NewMemoryRequestCache(DefaultRequestTTL, DefaultMaxEntries),
		structural:        newStructuralCache(DefaultStructuralTTL),
		understandTimeout: DefaultUnderstandTimeout,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	store.OnReplace(func(cfg *site.SiteConfiguration) {
		p.structural.invalidate()
		p.requestCache.Purge(context.Background())
		p.logger.Info("Planner caches invalidated after configuration replacement",
			"version", cfg.Version)
	})

	return p
}

// Plan executes one planning request end to end. Handled planning failures
// come back as a PlanResult with Success false; the error return is reserved
// for context cancellation.
func (p *Planner) Plan(ctx context.Context, req *PlanRequest) (*PlanResult, error) {
	started := time.Now()
	requestID := uuid.NewString()

	result, err := p.plan(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	result.Performance.DurationMs = time.Since(started).Milliseconds()
	result.Performance.Level = perfLevel(result.Performance.DurationMs)
	result.RequestID = requestID

	p.logger.Info("Plan request finished",
		"request_id", requestID,
		"success", result.Success,
		"error_kind", string(result.ErrorKind),
		"duration_ms", result.Performance.DurationMs,
		"cache_hit", result.CacheHit)

	for _, obs := range p.observers {
		obs.PlanCompleted(ctx, req, result)
	}
	return result, nil
}

func (p *Planner) plan(ctx context.Context, req *PlanRequest, requestID string) (*PlanResult, error) {
	if err := validateRequest(req); err != nil {
		return failure(err, 0, 0), nil
	}

	cacheKey := requestCacheKey(req)
	if plan, ok := p.requestCache.Get(ctx, cacheKey); ok {
		return &PlanResult{
			Success:     true,
			Plan:        plan,
			CacheHit:    true,
			CacheType:   "request",
			Performance: Performance{CacheHits: 1},
		}, nil
	}

	cfg := p.store.Snapshot()
	if cfg == nil {
		return failure(newError(KindConfiguration, "no site configuration loaded"), 0, 0), nil
	}

	structural, structuralHit, err := p.structural.get(cfg.Version, func() (*Structural, error) {
		return BuildStructural(cfg)
	})
	if err != nil {
		return failure(err, 0, 0), nil
	}
	cacheHits := 0
	if structuralHit {
		cacheHits = 1
	}

	prompt, err := BuildPrompt(req.Query, cfg, req.Context, req.UserRole)
	if err != nil {
		return failure(err, 0, cacheHits), nil
	}

	understanding, err := p.understand(ctx, prompt, cfg, requestID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return failure(err, 1, cacheHits), nil
	}

	resolution, err := p.resolver.Resolve(ctx, understanding.EntityMentions, cfg, structural)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return failure(err, 1, cacheHits), nil
	}

	assembler := NewAssembler(cfg, structural)
	plan, err := assembler.Assemble(req.Query, understanding, resolution, req.UserRole, req.MaxAlternatives)
	if err != nil {
		if resolution.LookupTimedOut {
			err = wrapError(KindTimeout, err, "entity lookups timed out before a route could be bound")
		}
		return failure(err, 1, cacheHits), nil
	}

	p.requestCache.Set(ctx, cacheKey, plan)

	result := &PlanResult{
		Success:     true,
		Plan:        plan,
		Performance: Performance{LLMCalls: 1, CacheHits: cacheHits},
	}
	if structuralHit {
		result.CacheType = "structural"
	}
	return result, nil
}

// understand performs the single language-model call and parses its reply.
// A reply that is partially salvageable degrades instead of failing: the
// parse error is logged and planning continues from the salvaged fields.
func (p *Planner) understand(ctx context.Context, prompt string, cfg *site.SiteConfiguration, requestID string) (*Understanding, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.understandTimeout)
	defer cancel()

	resp, err := p.analysis.Analyze(callCtx, prompt, understandingTemp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, wrapError(KindTimeout, err, "language model call timed out")
		}
		return nil, wrapError(KindUnderstanding, err, "language model call failed")
	}

	understanding, err := ParseUnderstanding(resp.Content, cfg)
	if err != nil {
		var uerr *UnderstandingError
		if errors.As(err, &uerr) && uerr.Partial != nil {
			p.logger.Warn("Salvaged partial understanding",
				"request_id", requestID,
				"reason", uerr.Reason)
			return uerr.Partial, nil
		}
		return nil, wrapError(KindUnderstanding, err, "could not interpret language model reply")
	}
	return understanding, nil
}

// CacheStats reports request and structural cache counters.
func (p *Planner) CacheStats(ctx context.Context) (request, structural CacheStats) {
	return p.requestCache.Stats(ctx), p.structural.stats()
}

// PurgeCaches drops both caches.
func (p *Planner) PurgeCaches(ctx context.Context) {
	p.requestCache.Purge(ctx)
	p.structural.invalidate()
}

func validateRequest(req *PlanRequest) error {
	trimmed := NormalizeText(req.Query)
	if trimmed == "" {
		return newError(KindInvalidRequest, "query must not be empty")
	}
	if len(req.Query) > MaxQueryLength {
		return newError(KindInvalidRequest, "query exceeds %d characters", MaxQueryLength)
	}
	if req.MaxAlternatives < 0 || req.MaxAlternatives > MaxAlternativesCeiling {
		return newError(KindInvalidRequest, "max_alternatives must be between 0 and %d", MaxAlternativesCeiling)
	}
	return nil
}

// requestCacheKey fingerprints the request fields that influence the plan.
// Queries differing only in case or whitespace share an entry.
func requestCacheKey(req *PlanRequest) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(req.Query)))
	h.Write([]byte{0})
	h.Write([]byte(req.UserRole))
	h.Write([]byte{0})
	h.Write(sortedContextJSON(req.Context))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxAlternatives)))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedContextJSON(ctx map[string]string) []byte {
	if len(ctx) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, len(keys))
	for i, k := range keys {
		ordered[i] = [2]string{k, ctx[k]}
	}
	data, _ := json.Marshal(ordered)
	return data
}

// failure converts a planning error into a non-success result. Unknown
// error types are reported as understanding failures rather than leaking
// internals to callers.
func failure(err error, llmCalls, cacheHits int) *PlanResult {
	kind := KindUnderstanding
	message := err.Error()
	var perr *Error
	if errors.As(err, &perr) {
		kind = perr.Kind
		message = perr.Message
	}
	return &PlanResult{
		ErrorKind:   kind,
		Message:     message,
		Performance: Performance{LLMCalls: llmCalls, CacheHits: cacheHits},
	}
}

func perfLevel(ms int64) string {
	switch {
	case ms < perfExcellentBelow:
		return "excellent"
	case ms < perfGoodBelow:
		return "good"
	case ms < perfAcceptableBelow:
		return "acceptable"
	case ms < perfSlowBelow:
		return "slow"
	default:
		return "critical"
	}
}
