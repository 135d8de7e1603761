package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
	_ storage.Lister  = (*Backend)(nil)
	_ storage.Pruner  = (*Backend)(nil)
)

// Backend keeps artifacts in Postgres and serves them through the artifact
// route.
type Backend struct {
	pool    *pgxpool.Pool
	baseURL string
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	folder TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data BYTEA NOT NULL,
	size BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_created_at ON artifacts (created_at);
`

// New connects to dsn and creates the schema. baseURL is the public address
// of the artifact route.
func New(ctx context.Context, dsn, baseURL string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &Backend{pool: pool, baseURL: baseURL}, nil
}

// Put stores data under folder/objectName, replacing any previous object.
func (b *Backend) Put(ctx context.Context, data []byte, objectName, folder string) (string, error) {
	key := storage.ObjectKey(folder, objectName)

	query := `
	INSERT INTO artifacts (key, folder, content_type, data, size, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (key) DO UPDATE SET
		content_type = EXCLUDED.content_type,
		data = EXCLUDED.data,
		size = EXCLUDED.size,
		created_at = EXCLUDED.created_at
	`

	_, err := b.pool.Exec(ctx, query,
		key,
		storage.CleanFolder(folder),
		storage.ContentType(objectName),
		data,
		int64(len(data)),
		time.Now().UTC(),
	)
	if err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}

	return storage.PublicURL(b.baseURL, key), nil
}

func (b *Backend) Get(ctx context.Context, key string) (*storage.Object, error) {
	var o storage.Object
	err := b.pool.QueryRow(ctx,
		`SELECT key, folder, content_type, data, created_at FROM artifacts WHERE key = $1`, key,
	).Scan(&o.Key, &o.Folder, &o.ContentType, &o.Data, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return &o, nil
}

func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.ObjectInfo, error) {
	query := `SELECT key, folder, content_type, size, created_at FROM artifacts WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Folder != "" {
		query += fmt.Sprintf(` AND folder = $%d`, paramCount)
		args = append(args, storage.CleanFolder(filter.Folder))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC, key`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.ObjectInfo
	for rows.Next() {
		var o storage.ObjectInfo
		if err := rows.Scan(&o.Key, &o.Folder, &o.ContentType, &o.Size, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		results = append(results, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}

	return results, nil
}

// Prune deletes objects created before the cutoff.
func (b *Backend) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM artifacts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}
