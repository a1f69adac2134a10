// Package storage provides one adapter per storage kind (local disk,
// GCS, S3, read-only HTTP) behind a uniform contract: existence
// probes, small-document reads and writes, and streaming primitives
// used by the transfer layer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/me/stagehand/pkg/uri"
)

// ErrAuthRequired marks transport failures caused by missing or
// rejected credentials. It is surfaced verbatim; this layer never
// prompts for or caches credentials.
var ErrAuthRequired = errors.New("authentication required")

// ErrReadOnly is returned by write operations on read-only backends (URL).
var ErrReadOnly = errors.New("storage is read-only")

// ReadError wraps a failure to retrieve an object's content.
type ReadError struct {
	URI uri.URI
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.URI, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Adapter is the per-kind storage contract.
//
// Exists must not fail the caller on transient errors: it retries per
// the adapter's policy, logs the cause, and reports false once retries
// are exhausted. Open and Put stream object bytes without ever holding
// the whole object in memory.
type Adapter interface {
	Kind() uri.Kind

	Exists(ctx context.Context, u uri.URI) bool
	ReadText(ctx context.Context, u uri.URI) (string, error)
	WriteText(ctx context.Context, u uri.URI, text string) error
	Delete(ctx context.Context, u uri.URI) error

	Open(ctx context.Context, u uri.URI) (io.ReadCloser, error)
	Put(ctx context.Context, u uri.URI, r io.Reader) error
}

// Copier is implemented by adapters whose backend can copy an object
// to a same-kind destination without routing bytes through this
// process (filesystem copy, S3 CopyObject, GCS CopierFrom).
type Copier interface {
	Copy(ctx context.Context, src, dst uri.URI) error
}

// ResumableSource is implemented by adapters that can begin a read at
// a byte offset, so an interrupted download can pick up where a
// partial temp file left off.
type ResumableSource interface {
	OpenAt(ctx context.Context, u uri.URI, offset int64) (io.ReadCloser, error)
}

// Registry resolves the adapter for a storage kind.
type Registry struct {
	adapters map[uri.Kind]Adapter
}

// NewRegistry builds a registry from the given adapters. Later
// adapters win on kind collisions.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[uri.Kind]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Kind()] = a
	}
	return &Registry{adapters: m}
}

// For returns the adapter registered for kind.
func (r *Registry) For(kind uri.Kind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no storage adapter for kind %s", kind)
	}
	return a, nil
}
