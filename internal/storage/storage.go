package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("storage: object not found")

// Object is a stored artifact.
type Object struct {
	Key         string
	Folder      string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ObjectInfo describes a stored artifact without its payload.
type ObjectInfo struct {
	Key         string
	Folder      string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Filter narrows a listing of stored artifacts.
type Filter struct {
	Folder string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend publishes artifacts and returns the URL they can be fetched from.
type Backend interface {
	Put(ctx context.Context, data []byte, objectName, folder string) (string, error)
	Close() error
}

// Reader is implemented by backends whose objects are served by this
// process rather than by the storage provider.
type Reader interface {
	Get(ctx context.Context, key string) (*Object, error)
}

// Lister is implemented by backends that can enumerate their objects.
type Lister interface {
	Query(ctx context.Context, filter Filter) ([]*ObjectInfo, error)
}

// Pruner is implemented by backends that support retention.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// CleanFolder drops leading and trailing slashes from a folder name.
func CleanFolder(folder string) string {
	return strings.Trim(folder, "/")
}

// ObjectKey joins folder and name. Leading and trailing slashes on the
// folder are dropped and an empty folder yields the bare name.
func ObjectKey(folder, name string) string {
	folder = CleanFolder(folder)
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".json": "application/json",
}

// ContentType guesses the MIME type from the object name.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// PublicURL builds the URL under which the artifact route serves key.
func PublicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + RoutePrefix + key
}
