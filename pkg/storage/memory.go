package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tallywatt/tallywatt/pkg/types"
)

// MemoryProvider is a non-durable Database for development and tests. Blobs
// round-trip through JSON so it exercises the same serialization path as the
// real providers.
type MemoryProvider struct {
	mu    sync.Mutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	version int
	json    []byte
}

// NewMemoryProvider creates an empty in-memory store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{blobs: make(map[string]memoryBlob)}
}

func (m *MemoryProvider) getBlob(name string, out any) (int, error) {
	m.mu.Lock()
	b, ok := m.blobs[name]
	m.mu.Unlock()
	if !ok {
		return 0, ErrNotFound
	}
	if err := json.Unmarshal(b.json, out); err != nil {
		return 0, fmt.Errorf("failed to unmarshal %s json: %w", name, err)
	}
	return b.version, nil
}

func (m *MemoryProvider) setBlob(name string, in any, version int) error {
	jsonBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	m.mu.Lock()
	m.blobs[name] = memoryBlob{version: version, json: jsonBytes}
	m.mu.Unlock()
	return nil
}

// GetSettings retrieves the settings blob.
func (m *MemoryProvider) GetSettings(_ context.Context) (types.Settings, int, error) {
	var s types.Settings
	version, err := m.getBlob(settingsDoc, &s)
	if err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the settings blob.
func (m *MemoryProvider) SetSettings(_ context.Context, settings types.Settings, version int) error {
	return m.setBlob(settingsDoc, settings, version)
}

// LoadLedgerState retrieves the persisted ledger snapshot.
func (m *MemoryProvider) LoadLedgerState(_ context.Context) (types.LedgerState, int, error) {
	var state types.LedgerState
	version, err := m.getBlob(ledgerStateDoc, &state)
	if err != nil {
		return types.LedgerState{}, 0, err
	}
	return state, version, nil
}

// SaveLedgerState persists the ledger snapshot.
func (m *MemoryProvider) SaveLedgerState(_ context.Context, state types.LedgerState, version int) error {
	return m.setBlob(ledgerStateDoc, state, version)
}

// Close is a no-op.
func (m *MemoryProvider) Close() error { return nil }

var _ Database = (*MemoryProvider)(nil)
