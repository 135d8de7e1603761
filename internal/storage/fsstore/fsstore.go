// Package fsstore keeps artifacts as plain files under a root directory.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
	_ storage.Lister  = (*Backend)(nil)
	_ storage.Pruner  = (*Backend)(nil)
)

type Backend struct {
	root    string
	baseURL string
}

// New creates the root directory if needed.
func New(root, baseURL string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	return &Backend{root: root, baseURL: baseURL}, nil
}

func (b *Backend) path(key string) (string, error) {
	p := filepath.Join(b.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("fsstore: invalid key %q", key)
	}
	return p, nil
}

// Put writes the object atomically via a temp file and rename.
func (b *Backend) Put(ctx context.Context, data []byte, objectName, folder string) (string, error) {
	key := storage.ObjectKey(folder, objectName)
	p, err := b.path(key)
	if err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &domain.StorageError{Object: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &domain.StorageError{Object: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", &domain.StorageError{Object: key, Err: err}
	}

	return storage.PublicURL(b.baseURL, key), nil
}

func (b *Backend) Get(ctx context.Context, key string) (*storage.Object, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	return &storage.Object{
		Key:         key,
		Folder:      folderOf(key),
		ContentType: storage.ContentType(key),
		Data:        data,
		CreatedAt:   info.ModTime(),
	}, nil
}

func (b *Backend) walk(fn func(key string, info fs.FileInfo) error) error {
	return filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info)
	})
}

func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.ObjectInfo, error) {
	folder := storage.CleanFolder(filter.Folder)

	var out []*storage.ObjectInfo
	err := b.walk(func(key string, info fs.FileInfo) error {
		if folder != "" && folderOf(key) != folder {
			return nil
		}
		if filter.Since != nil && info.ModTime().Before(*filter.Since) {
			return nil
		}
		out = append(out, &storage.ObjectInfo{
			Key:         key,
			Folder:      folderOf(key),
			ContentType: storage.ContentType(key),
			Size:        info.Size(),
			CreatedAt:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsstore: query: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Prune removes files last written before the cutoff.
func (b *Backend) Prune(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := b.walk(func(key string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.ModTime().Before(before) {
			return nil
		}
		p, err := b.path(key)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("fsstore: prune: %w", err)
	}
	return n, nil
}

func (b *Backend) Close() error {
	return nil
}

func folderOf(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i]
	}
	return ""
}
