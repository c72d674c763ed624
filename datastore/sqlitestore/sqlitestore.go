// Package sqlitestore provides a SQLite-backed entity lookup client, useful
// for development and single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/fantastic-router/fantastic-router/datastore"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Client searches entities in a SQLite database.
type Client struct {
	db     *sql.DB
	logger *slog.Logger

	columnsMu sync.RWMutex
	columns   map[string][]string
}

// Open opens (or creates) the database at path. Use ":memory:" for an
// ephemeral database in tests.
func Open(path string, logger *slog.Logger) (*Client, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writes anyway; keep the pool small.
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		db:      db,
		logger:  logger,
		columns: make(map[string][]string),
	}, nil
}

// DB exposes the underlying handle so callers can seed fixtures.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database.
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping reports connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Search probes each table for rows whose given fields contain query,
// case-insensitively.
func (c *Client) Search(ctx context.Context, query string, tables []string, fields []string, limit int) ([]datastore.Record, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []datastore.Record
	for _, table := range tables {
		if !identPattern.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}

		available, err := c.tableColumns(ctx, table)
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

func (c *Client) tableColumns(ctx context.Context, table string) ([]string, error) {
	c.columnsMu.RLock()
	cols, ok := c.columns[table]
	c.columnsMu.RUnlock()
	if ok {
		return cols, nil
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols = cols[:0]
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q does not exist", table)
	}

	c.columnsMu.Lock()
	c.columns[table] = cols
	c.columnsMu.Unlock()

	return cols, nil
}

func (c *Client) searchTable(ctx context.Context, query, table string, fields []string, limit int) ([]datastore.Record, error) {
	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		conds = append(conds, fmt.Sprintf("lower(%s) LIKE ?", f))
		args = append(args, "%"+strings.ToLower(query)+"%")
	}
	args = append(args, limit)

	sqlText := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT ?",
		table, strings.Join(conds, " OR "))

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []datastore.Record
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		fieldMap := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			fieldMap[col] = v
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
