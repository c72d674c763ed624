package planning

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fantastic-router/fantastic-router/datastore"
	"github.com/fantastic-router/fantastic-router/llm"
	"github.com/fantastic-router/fantastic-router/site"
)

// fakeAnalysis replays a canned understanding reply.
type fakeAnalysis struct {
	reply string
	err   error
	calls atomic.Int32
}

func (f *fakeAnalysis) Analyze(ctx context.Context, prompt string, temperature float64) (*llm.Response, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply, Provider: "fake", Model: "fake-model"}, nil
}

const financialsReply = `{
	"action_type": "NAVIGATE",
	"entity_mentions": ["James Smith"],
	"candidate_pattern": "landlord_financials",
	"reasoning": "user asked for a landlord's financial overview"
}`

func landlordStore() *fakeStore {
	return &fakeStore{records: map[string][]datastore.Record{
		"landlords": {
			landlordRecord("L1", "James Smith"),
			landlordRecord("L2", "Jane Doe"),
		},
	}}
}

func newTestPlanner(t *testing.T, analysis AnalysisClient, opts ...PlannerOption) (*Planner, *site.Store) {
	t.Helper()
	store := site.NewStore(testConfig(t), nil)
	resolver := NewResolver(landlordStore())
	return NewPlanner(store, analysis, resolver, opts...), store
}

func financialsRequest() *PlanRequest {
	return &PlanRequest{
		Query:           "show me the financials of James Smith",
		UserRole:        "accountant",
		MaxAlternatives: 3,
	}
}

func TestPlannerEndToEnd(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	planner, _ := newTestPlanner(t, analysis)

	result, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	require.True(t, result.Success, "message: %s", result.Message)
	require.NotNil(t, result.Plan)
	assert.Equal(t, "/landlords/L1/financials", result.Plan.Route)
	assert.Equal(t, ActionNavigate, result.Plan.ActionType)
	assert.Equal(t, "landlord_financials", result.Plan.MatchedPattern)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, 1, result.Performance.LLMCalls, "exactly one understanding call per query")
	assert.Equal(t, "excellent", result.Performance.Level)
	assert.False(t, result.CacheHit)
	assert.EqualValues(t, 1, analysis.calls.Load())
}

func TestPlannerRequestCacheHit(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	planner, _ := newTestPlanner(t, analysis)

	first, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)
	require.True(t, second.Success)

	assert.True(t, second.CacheHit)
	assert.Equal(t, "request", second.CacheType)
	assert.Equal(t, 0, second.Performance.LLMCalls)
	assert.Equal(t, first.Plan.Route, second.Plan.Route)
	assert.EqualValues(t, 1, analysis.calls.Load(), "cache hit must not call the model")
}

func TestPlannerCacheKeyNormalization(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	planner, _ := newTestPlanner(t, analysis)

	req := financialsRequest()
	_, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	// Same query modulo case and whitespace shares the cache entry.
	req2 := financialsRequest()
	req2.Query = "  Show me the   FINANCIALS of james smith "
	result, err := planner.Plan(context.Background(), req2)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)

	// A different role is a different entry.
	req3 := financialsRequest()
	req3.UserRole = "viewer"
	result, err = planner.Plan(context.Background(), req3)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
}

func TestPlannerValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *PlanRequest
	}{
		{"empty query", &PlanRequest{Query: "   "}},
		{"query too long", &PlanRequest{Query: strings.Repeat("x", MaxQueryLength+1)}},
		{"negative alternatives", &PlanRequest{Query: "q", MaxAlternatives: -1}},
		{"too many alternatives", &PlanRequest{Query: "q", MaxAlternatives: MaxAlternativesCeiling + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := &fakeAnalysis{reply: financialsReply}
			planner, _ := newTestPlanner(t, analysis)

			result, err := planner.Plan(context.Background(), tt.req)
			require.NoError(t, err)

			assert.False(t, result.Success)
			assert.Equal(t, KindInvalidRequest, result.ErrorKind)
			assert.EqualValues(t, 0, analysis.calls.Load(), "invalid requests must not reach the model")
		})
	}
}

func TestPlannerSalvagesPartialUnderstanding(t *testing.T) {
	// The model suggests a pattern that does not exist; planning should
	// fall back to best-effort search over all patterns.
	analysis := &fakeAnalysis{reply: `{
		"action_type": "NAVIGATE",
		"entity_mentions": ["James Smith"],
		"candidate_pattern": "imaginary_pattern"
	}`}
	planner, _ := newTestPlanner(t, analysis)

	result, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	require.True(t, result.Success, "message: %s", result.Message)
	assert.Equal(t, "/landlords/L1/financials", result.Plan.Route,
		"declaration order decides when no pattern is suggested")
}

func TestPlannerUnderstandingFailure(t *testing.T) {
	analysis := &fakeAnalysis{err: errors.New("model exploded")}
	planner, _ := newTestPlanner(t, analysis)

	result, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, KindUnderstanding, result.ErrorKind)
}

func TestPlannerJSONFreeReplyFallsBackToPatternSearch(t *testing.T) {
	// A reply with no extractable JSON degrades to a bare pattern search:
	// no mentions resolve, no entity-parameterized pattern binds, and the
	// request fails as no_matching_route rather than understanding_error.
	analysis := &fakeAnalysis{reply: "I have no idea."}
	planner, _ := newTestPlanner(t, analysis)

	result, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, KindNoMatchingRoute, result.ErrorKind)
}

func TestPlannerJSONFreeReplyBindsParameterlessPattern(t *testing.T) {
	// With a role that unlocks a pattern without placeholders, the fallback
	// search still produces a plan from a JSON-free reply.
	analysis := &fakeAnalysis{reply: "no structured output here"}
	planner, _ := newTestPlanner(t, analysis)

	req := financialsRequest()
	req.UserRole = "admin"
	result, err := planner.Plan(context.Background(), req)
	require.NoError(t, err)

	require.True(t, result.Success, "message: %s", result.Message)
	assert.Equal(t, "/admin/reports", result.Plan.Route)
	assert.Equal(t, "admin_reports", result.Plan.MatchedPattern)
}

func TestPlannerUnresolvedEntity(t *testing.T) {
	analysis := &fakeAnalysis{reply: `{
		"action_type": "NAVIGATE",
		"entity_mentions": ["Completely Unknown Person"],
		"candidate_pattern": "landlord_financials"
	}`}
	planner, _ := newTestPlanner(t, analysis)

	result, err := planner.Plan(context.Background(), &PlanRequest{Query: "financials for Completely Unknown Person"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, KindUnresolvedEntity, result.ErrorKind)
	assert.Contains(t, result.Message, "Completely Unknown Person")
}

func TestPlannerConfigReplacementInvalidatesCaches(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	planner, store := newTestPlanner(t, analysis)

	_, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	replacement, loadErr := site.Load([]byte(propertyConfig))
	require.NoError(t, loadErr)
	store.Replace(replacement)

	result, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	assert.False(t, result.CacheHit, "replacement must purge the request cache")
	assert.EqualValues(t, 2, analysis.calls.Load())
}

func TestPlannerDeterministic(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	planner, _ := newTestPlanner(t, analysis)

	first, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)
	require.True(t, first.Success)

	for i := 0; i < 5; i++ {
		planner.PurgeCaches(context.Background())
		again, err := planner.Plan(context.Background(), financialsRequest())
		require.NoError(t, err)
		require.True(t, again.Success)
		assert.Equal(t, first.Plan.Route, again.Plan.Route)
		assert.Equal(t, first.Plan.Confidence, again.Plan.Confidence)
		assert.Equal(t, first.Plan.MatchedPattern, again.Plan.MatchedPattern)
	}
}

// observerRecorder captures observer notifications.
type observerRecorder struct {
	results []*PlanResult
}

func (o *observerRecorder) PlanCompleted(_ context.Context, _ *PlanRequest, result *PlanResult) {
	o.results = append(o.results, result)
}

func TestPlannerNotifiesObservers(t *testing.T) {
	analysis := &fakeAnalysis{reply: financialsReply}
	recorder := &observerRecorder{}
	planner, _ := newTestPlanner(t, analysis, WithObserver(recorder))

	_, err := planner.Plan(context.Background(), financialsRequest())
	require.NoError(t, err)

	require.Len(t, recorder.results, 1)
	assert.True(t, recorder.results[0].Success)
	assert.NotEmpty(t, recorder.results[0].RequestID)
}

func TestPerfLevel(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "excellent"},
		{999, "excellent"},
		{1000, "good"},
		{2999, "good"},
		{3000, "acceptable"},
		{4999, "acceptable"},
		{5000, "slow"},
		{9999, "slow"},
		{10000, "critical"},
		{60000, "critical"},
	}
	for _, tt := range tests {
		if got := perfLevel(tt.ms); got != tt.want {
			t.Errorf("perfLevel(%d) = %s, want %s", tt.ms, got, tt.want)
		}
	}
}
