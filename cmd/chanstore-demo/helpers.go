// ABOUTME: Small helpers shared across the demo's scenario functions: JSON encoding that panics on programmer error, an in-memory BlobStorage, and a scoped slog logger.
// ABOUTME: A panic on marshal failure is appropriate here because every call site passes a literal Go value the demo itself constructed; a real marshal failure would mean a bug in this file, not bad input.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/loomwork/chanstore/internal/dstore"
)

func jsonMust(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("demo: marshaling literal value: %v", err))
	}
	return b
}

// memoryBlobStorage is a trivial dstore.BlobStorage backing every demo
// scenario; none of them needs real persistence.
type memoryBlobStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryBlobStorage() *memoryBlobStorage {
	return &memoryBlobStorage{blobs: make(map[string][]byte)}
}

func (m *memoryBlobStorage) ReadBlob(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", id)
	}
	return b, nil
}

func (m *memoryBlobStorage) WriteBlob(id string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = content
}

var _ dstore.BlobStorage = (*memoryBlobStorage)(nil)

func newDemoLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
