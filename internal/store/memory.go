package store

import (
	"context"
	"sync/atomic"

	"BollWatch/internal/model"
)

// MemoryStore keeps the latest report in process memory.
type MemoryStore struct {
	latest atomic.Pointer[model.RunReport]
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Put(_ context.Context, r *model.RunReport) error {
	m.latest.Store(r)
	return nil
}

func (m *MemoryStore) Get(_ context.Context) (*model.RunReport, error) {
	r := m.latest.Load()
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}
