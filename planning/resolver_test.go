package planning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fantastic-router/fantastic-router/datastore"
)

// fakeStore serves canned records per table and can simulate failures.
type fakeStore struct {
	records map[string][]datastore.Record
	errs    map[string]error
	delay   time.Duration
}

func (f *fakeStore) Search(ctx context.Context, query string, tables, fields []string, limit int) ([]datastore.Record, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []datastore.Record
	for _, table := range tables {
		if err := f.errs[table]; err != nil {
			return nil, err
		}
		out = append(out, f.records[table]...)
	}
	return out, nil
}

func landlordRecord(id, name string) datastore.Record {
	return datastore.Record{
		Table: "landlords",
		Fields: map[string]any{
			"id":         id,
			"first_name": firstWord(name),
			"full_name":  name,
		},
	}
}

func firstWord(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i]
		}
	}
	return s
}

func TestResolverExactMatch(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)
	store := &fakeStore{records: map[string][]datastore.Record{
		"landlords": {
			landlordRecord("L1", "James Smith"),
			landlordRecord("L2", "Jane Doe"),
		},
	}}

	r := NewResolver(store)
	res, err := r.Resolve(context.Background(), []string{"James Smith"}, cfg, structural)
	require.NoError(t, err)

	matches := res.Matches["James Smith"]
	require.NotEmpty(t, matches)
	assert.Equal(t, "L1", matches[0].ID)
	assert.Equal(t, 1.0, matches[0].Confidence)
	assert.Equal(t, "landlord", matches[0].EntityKind)
	assert.Equal(t, "James Smith", matches[0].DisplayName)
	assert.Empty(t, res.Unresolved)
}

func TestResolverThreshold(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)
	store := &fakeStore{records: map[string][]datastore.Record{
		"landlords": {landlordRecord("L1", "James Smith")},
	}}

	r := NewResolver(store, WithAcceptanceThreshold(0.99))
	res, err := r.Resolve(context.Background(), []string{"Jimmy Smoth"}, cfg, structural)
	require.NoError(t, err)

	assert.Empty(t, res.Matches)
	assert.Equal(t, []string{"Jimmy Smoth"}, res.Unresolved)
}

func TestResolverRankingDeterministic(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)

	// Same person exists as landlord and tenant; equal confidence must
	// break ties by entity declaration order (landlord first).
	record := func(table, id string) datastore.Record {
		return datastore.Record{Table: table, Fields: map[string]any{
			"id": id, "first_name": "James", "full_name": "James Smith",
		}}
	}
	store := &fakeStore{records: map[string][]datastore.Record{
		"landlords": {record("landlords", "X1")},
		"tenants":   {record("tenants", "X1")},
	}}

	r := NewResolver(store)
	for i := 0; i < 10; i++ {
		res, err := r.Resolve(context.Background(), []string{"James Smith"}, cfg, structural)
		require.NoError(t, err)

		matches := res.Matches["James Smith"]
		require.Len(t, matches, 2)
		assert.Equal(t, "landlord", matches[0].EntityKind)
		assert.Equal(t, "tenant", matches[1].EntityKind)
	}
}

func TestResolverMaxCandidates(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)

	var records []datastore.Record
	for _, id := range []string{"L1", "L2", "L3", "L4", "L5", "L6"} {
		records = append(records, landlordRecord(id, "James Smith"))
	}
	store := &fakeStore{records: map[string][]datastore.Record{"landlords": records}}

	r := NewResolver(store, WithMaxCandidates(3))
	res, err := r.Resolve(context.Background(), []string{"James Smith"}, cfg, structural)
	require.NoError(t, err)
	assert.Len(t, res.Matches["James Smith"], 3)
}

func TestResolverLookupErrorDegrades(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)
	store := &fakeStore{
		errs: map[string]error{
			"landlords":  errors.New("connection refused"),
			"tenants":    errors.New("connection refused"),
			"properties": errors.New("connection refused"),
		},
	}

	r := NewResolver(store)
	res, err := r.Resolve(context.Background(), []string{"James Smith"}, cfg, structural)
	require.NoError(t, err, "lookup failures must not fail the request")
	assert.Equal(t, []string{"James Smith"}, res.Unresolved)
	assert.False(t, res.LookupTimedOut)
}

func TestResolverLookupTimeout(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)
	store := &fakeStore{delay: 50 * time.Millisecond}

	r := NewResolver(store, WithLookupTimeout(time.Millisecond))
	res, err := r.Resolve(context.Background(), []string{"James Smith"}, cfg, structural)
	require.NoError(t, err)
	assert.True(t, res.LookupTimedOut)
	assert.Equal(t, []string{"James Smith"}, res.Unresolved)
}

func TestResolverNoMentions(t *testing.T) {
	cfg := testConfig(t)
	structural := testStructural(t, cfg)

	r := NewResolver(&fakeStore{})
	res, err := r.Resolve(context.Background(), nil, cfg, structural)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Unresolved)
}
