// Package snapshot persists cart line lists on behalf of a device: the guest
// Local Snapshot and the signed-in offline backup.
package snapshot

import (
	"context"
	"fmt"

	"storefront-checkout/internal/domain"
)

// Repository loads and stores line lists by key. Load of an absent key
// returns an empty list without error.
type Repository interface {
	Load(ctx context.Context, key string) ([]domain.CartItem, error)
	Save(ctx context.Context, key string, items []domain.CartItem) error
	Delete(ctx context.Context, key string) error
}

// GuestKey is where the Local Snapshot for a device lives.
func GuestKey(deviceID string) string {
	return fmt.Sprintf("cart:guest:%s", deviceID)
}

// BackupKey is where a signed-in device mirrors the server cart.
func BackupKey(deviceID string) string {
	return fmt.Sprintf("cart:backup:%s", deviceID)
}
