// Package datastore defines the read-only entity lookup boundary. The
// planning engine probes it for records that might match an entity mention;
// scoring and ranking happen in the engine, not here.
package datastore

import "context"

// Record is one raw row returned from an entity search, tagged with the
// table it came from.
type Record struct {
	// Table is the table the record was found in.
	Table string

	// Fields holds the record's column values.
	Fields map[string]any
}

// Client searches for candidate entity records. Implementations must be
// safe for concurrent use and must never write through this interface.
type Client interface {
	// Search probes the given tables, matching query against the given
	// fields case-insensitively. Fields absent from a table are skipped.
	// At most limit records are returned per table.
	Search(ctx context.Context, query string, tables []string, fields []string, limit int) ([]Record, error)
}

// Pinger is implemented by clients that can report connectivity, used by
// the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
