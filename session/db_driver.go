package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBDriver persists sessions in a `(id PK, data, last_activity)` table.
// Writes use the UPDATE-then-INSERT-on-no-rows-affected pattern rather
// than a native Postgres UPSERT.
type DBDriver struct {
	pool  *pgxpool.Pool
	table string
}

// NewDBDriver wraps an existing pool. table defaults to "razy_sessions".
func NewDBDriver(pool *pgxpool.Pool, table string) *DBDriver {
	if table == "" {
		table = "razy_sessions"
	}
	return &DBDriver{pool: pool, table: table}
}

func (d *DBDriver) Open() error  { return nil }
func (d *DBDriver) Close() error { d.pool.Close(); return nil }

func (d *DBDriver) Read(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, d.table)
	err := d.pool.QueryRow(ctx, query, id).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("razy: session db read: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("razy: session db decode: %w", err)
	}
	return data, nil
}

func (d *DBDriver) Write(ctx context.Context, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("razy: session db encode: %w", err)
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET data = $2, last_activity = NOW() WHERE id = $1`, d.table)
	tag, err := d.pool.Exec(ctx, updateQuery, id, raw)
	if err != nil {
		return fmt.Errorf("razy: session db update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (id, data, last_activity) VALUES ($1, $2, NOW())`, d.table)
	if _, err := d.pool.Exec(ctx, insertQuery, id, raw); err != nil {
		return fmt.Errorf("razy: session db insert: %w", err)
	}
	return nil
}

func (d *DBDriver) Destroy(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, d.table)
	if _, err := d.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("razy: session db delete: %w", err)
	}
	return nil
}

func (d *DBDriver) GC(ctx context.Context, maxLifetimeSeconds int) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE last_activity < NOW() - ($1 || ' seconds')::interval`, d.table)
	tag, err := d.pool.Exec(ctx, query, maxLifetimeSeconds)
	if err != nil {
		return 0, fmt.Errorf("razy: session db gc: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
