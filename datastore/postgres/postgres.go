// Package postgres provides a PostgreSQL-backed entity lookup client.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fantastic-router/fantastic-router/datastore"
)

// identPattern restricts table and column names to plain identifiers.
// Identifiers are interpolated into SQL (they cannot be bound as
// parameters), so anything else is rejected outright.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Client searches entities over a pgx connection pool. Searchable text
// columns are discovered per table from information_schema and cached.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	columnsMu sync.RWMutex
	columns   map[string][]string // table -> text columns
}

// New creates a client from a connection string.
func New(ctx context.Context, connString string, logger *slog.Logger) (*Client, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:    pool,
		logger:  logger,
		columns: make(map[string][]string),
	}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Ping reports connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Search probes each table for rows whose given fields contain query,
// case-insensitively. Fields that do not exist as text columns in a table
// are skipped; a table with no usable fields is skipped entirely.
func (c *Client) Search(ctx context.Context, query string, tables []string, fields []string, limit int) ([]datastore.Record, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []datastore.Record
	for _, table := range tables {
		if !identPattern.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}

		available, err := c.textColumns(ctx, table)
		if err != nil {
			c.logger.Warn("Column discovery failed, skipping table",
				"table", table,
				"error", err)
			continue
		}

		valid := intersect(fields, available)
		if len(valid) == 0 {
			continue
		}

		rows, err := c.searchTable(ctx, query, table, valid, limit)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			c.logger.Warn("Table search failed",
				"table", table,
				"error", err)
			continue
		}
		records = append(records, rows...)
	}

	return records, nil
}

// textColumns returns the searchable text columns of a table, cached after
// the first lookup.
func (c *Client) textColumns(ctx context.Context, table string) ([]string, error) {
	c.columnsMu.RLock()
	cols, ok := c.columns[table]
	c.columnsMu.RUnlock()
	if ok {
		return cols, nil
	}

	rows, err := c.pool.Query(ctx,
		`SELECT column_name
		   FROM information_schema.columns
		  WHERE table_name = $1 AND table_schema = 'public'
		    AND data_type IN ('character varying', 'varchar', 'text', 'char', 'character')`,
		table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols = cols[:0]
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.columnsMu.Lock()
	c.columns[table] = cols
	c.columnsMu.Unlock()

	return cols, nil
}

func (c *Client) searchTable(ctx context.Context, query, table string, fields []string, limit int) ([]datastore.Record, error) {
	conds := make([]string, 0, len(fields))
	for _, f := range fields {
		conds = append(conds, fmt.Sprintf("%s ILIKE $1", f))
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %d",
		table, strings.Join(conds, " OR "), limit)

	rows, err := c.pool.Query(ctx, sql, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []datastore.Record
	descs := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		fieldMap := make(map[string]any, len(descs))
		for i, desc := range descs {
			fieldMap[desc.Name] = values[i]
		}
		records = append(records, datastore.Record{Table: table, Fields: fieldMap})
	}
	return records, rows.Err()
}

func intersect(wanted, available []string) []string {
	set := make(map[string]bool, len(available))
	for _, a := range available {
		set[a] = true
	}
	var out []string
	for _, w := range wanted {
		if set[w] && identPattern.MatchString(w) {
			out = append(out, w)
		}
	}
	return out
}
