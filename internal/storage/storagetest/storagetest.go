// Package storagetest provides an in-memory storage adapter for
// exercising the localization pipeline without real backends.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/pkg/uri"
)

// MemAdapter is a thread-safe in-memory storage.Adapter. It can stand
// in for any storage kind, including read-only URL storage.
type MemAdapter struct {
	kind     uri.Kind
	readOnly bool

	mu      sync.Mutex
	objects map[string]string
	puts    map[string]int
}

// New creates an empty in-memory adapter for the given kind.
func New(kind uri.Kind) *MemAdapter {
	return &MemAdapter{
		kind:     kind,
		readOnly: kind == uri.URL,
		objects:  make(map[string]string),
		puts:     make(map[string]int),
	}
}

// Seed stores content at the given locator without counting as a put.
func (m *MemAdapter) Seed(locator, content string) *MemAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[locator] = content
	return m
}

// PutCount reports how many writes hit the given locator.
func (m *MemAdapter) PutCount(locator string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[locator]
}

// Content returns the stored content and whether the object exists.
func (m *MemAdapter) Content(locator string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.objects[locator]
	return s, ok
}

func (m *MemAdapter) Kind() uri.Kind { return m.kind }

func (m *MemAdapter) Exists(_ context.Context, u uri.URI) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[u.Locator()]
	return ok
}

func (m *MemAdapter) ReadText(_ context.Context, u uri.URI) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.objects[u.Locator()]
	if !ok {
		return "", &storage.ReadError{URI: u, Err: fmt.Errorf("no such object")}
	}
	return s, nil
}

func (m *MemAdapter) WriteText(ctx context.Context, u uri.URI, text string) error {
	return m.Put(ctx, u, strings.NewReader(text))
}

func (m *MemAdapter) Delete(_ context.Context, u uri.URI) error {
	if m.readOnly {
		return fmt.Errorf("storagetest: delete %s: %w", u, storage.ErrReadOnly)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, u.Locator())
	return nil
}

func (m *MemAdapter) Open(ctx context.Context, u uri.URI) (io.ReadCloser, error) {
	s, err := m.ReadText(ctx, u)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func (m *MemAdapter) Put(_ context.Context, u uri.URI, r io.Reader) error {
	if m.readOnly {
		return fmt.Errorf("storagetest: put %s: %w", u, storage.ErrReadOnly)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[u.Locator()] = string(data)
	m.puts[u.Locator()]++
	return nil
}
