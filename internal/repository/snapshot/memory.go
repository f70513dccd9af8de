package snapshot

import (
	"context"
	"sync"

	"storefront-checkout/internal/domain"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[string][]domain.CartItem
}

// NewMemory keeps snapshots in process. Used in tests and when Redis is not
// configured.
func NewMemory() Repository {
	return &memoryRepo{items: make(map[string][]domain.CartItem)}
}

func (r *memoryRepo) Load(_ context.Context, key string) ([]domain.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CloneItems(r.items[key]), nil
}

func (r *memoryRepo) Save(_ context.Context, key string, items []domain.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = domain.CloneItems(items)
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
	return nil
}
