package repository

import (
	"context"
	"sync"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

var _ SnapshotStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.PriceSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]models.PriceSnapshot)}
}

func (m *MemoryStore) SaveSnapshots(ctx context.Context, snapshots []models.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		m.items[s.Symbol] = s
	}
	return nil
}

func (m *MemoryStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PriceSnapshot, 0, len(symbols))
	for _, sym := range symbols {
		if s, ok := m.items[sym]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
