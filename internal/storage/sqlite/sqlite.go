package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
	_ storage.Lister  = (*Backend)(nil)
	_ storage.Pruner  = (*Backend)(nil)
)

// Backend keeps artifacts in a SQLite database and serves them through the
// artifact route.
type Backend struct {
	db      *sql.DB
	baseURL string
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	folder TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data BLOB NOT NULL,
	size INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_created_at ON artifacts (created_at);
`

// New opens the database at dsn. baseURL is the public address of the
// artifact route.
func New(dsn, baseURL string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &Backend{db: db, baseURL: baseURL}, nil
}

// Put stores data under folder/objectName, replacing any previous object.
func (b *Backend) Put(ctx context.Context, data []byte, objectName, folder string) (string, error) {
	key := storage.ObjectKey(folder, objectName)

	query := `
	INSERT INTO artifacts (key, folder, content_type, data, size, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		content_type = excluded.content_type,
		data = excluded.data,
		size = excluded.size,
		created_at = excluded.created_at
	`

	_, err := b.db.ExecContext(ctx, query,
		key,
		storage.CleanFolder(folder),
		storage.ContentType(objectName),
		data,
		len(data),
		time.Now().UTC(),
	)
	if err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}

	return storage.PublicURL(b.baseURL, key), nil
}

func (b *Backend) Get(ctx context.Context, key string) (*storage.Object, error) {
	var o storage.Object
	err := b.db.QueryRowContext(ctx,
		`SELECT key, folder, content_type, data, created_at FROM artifacts WHERE key = ?`, key,
	).Scan(&o.Key, &o.Folder, &o.ContentType, &o.Data, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return &o, nil
}

func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.ObjectInfo, error) {
	query := `SELECT key, folder, content_type, size, created_at FROM artifacts WHERE 1=1`
	args := []any{}

	if filter.Folder != "" {
		query += ` AND folder = ?`
		args = append(args, storage.CleanFolder(filter.Folder))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC, key`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.ObjectInfo
	for rows.Next() {
		var o storage.ObjectInfo
		if err := rows.Scan(&o.Key, &o.Folder, &o.ContentType, &o.Size, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		results = append(results, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}

	return results, nil
}

// Prune deletes objects created before the cutoff.
func (b *Backend) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM artifacts WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	return res.RowsAffected()
}

func (b *Backend) Close() error {
	return b.db.Close()
}
