// Package cart owns a shopper's cart lines across the guest and signed-in
// phases of a session and reconciles them with the server cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/repository/snapshot"
)

// API is the server cart.
type API interface {
	GetCart(ctx context.Context, token string) domain.CartResult
	AddCartItem(ctx context.Context, token string, line domain.CartLineInput) domain.CartResult
	UpdateCartItem(ctx context.Context, token string, line domain.CartLineInput) domain.CartResult
	RemoveCartItem(ctx context.Context, token string, key domain.LineKey) domain.CartResult
	ClearCart(ctx context.Context, token string) error
	SyncCart(ctx context.Context, token string, lines []domain.CartLineInput) domain.CartResult
}

type catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Deps struct {
	DeviceID  string
	API       API
	Catalog   catalog
	Snapshots snapshot.Repository
	Notifier  notify.Notifier
	Logger    *zap.Logger
	// NewID generates local line ids. Defaults to "local-<uuid>".
	NewID func() string
}

// Store is the cart of one device. The zero owner is Local; SignIn moves
// ownership to the server and SignOut moves it back with an empty cart.
type Store struct {
	deviceID  string
	api       API
	catalog   catalog
	snapshots snapshot.Repository
	notifier  notify.Notifier
	logger    *zap.Logger
	newID     func() string
	refresh   singleflight.Group

	mu             sync.Mutex
	owner          domain.CartOwner
	token          string
	mergeAttempted bool
	items          []domain.CartItem
}

func New(deps Deps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return "local-" + uuid.NewString() }
	}
	return &Store{
		deviceID:  deps.DeviceID,
		api:       deps.API,
		catalog:   deps.Catalog,
		snapshots: deps.Snapshots,
		notifier:  notifier,
		logger:    logger.With(zap.String("device_id", deps.DeviceID)),
		newID:     newID,
		owner:     domain.OwnerLocal,
		items:     []domain.CartItem{},
	}
}

// Restore loads the Local Snapshot into memory. Called once when the
// device's session is created.
func (s *Store) Restore(ctx context.Context) error {
	items, err := s.snapshots.Load(ctx, snapshot.GuestKey(s.deviceID))
	if err != nil {
		return fmt.Errorf("restore cart: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == domain.OwnerLocal {
		s.items = items
	}
	return nil
}

func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// Total is Σ(price × quantity), recomputed on every call.
func (s *Store) Total() float64 {
	return domain.CartTotal(s.Items())
}

// TotalItems is Σ(quantity).
func (s *Store) TotalItems() int {
	return domain.CartQuantity(s.Items())
}

func (s *Store) Owner() domain.CartOwner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *Store) IsAuthenticated() bool {
	return s.Owner() == domain.OwnerServer
}

// Token is the bearer token of the signed-in shopper, empty for guests.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Store) session() (domain.CartOwner, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.token
}

// AddToCart adds quantity of the product. An existing (productId, size)
// line has its quantity increased in both the guest and signed-in branches.
// Failures are returned so a buy-now flow can abort.
func (s *Store) AddToCart(ctx context.Context, productID string, quantity int, size string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return &domain.ValidationError{Field: "productId", Message: "product is required"}
	}
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Message: "quantity must be at least 1"}
	}

	owner, token := s.session()
	if owner == domain.OwnerLocal {
		return s.addLocal(ctx, productID, quantity, size)
	}

	res := s.api.AddCartItem(ctx, token, domain.CartLineInput{ProductID: productID, Quantity: quantity, Size: size})
	switch res.Kind {
	case domain.CartItems:
		s.replace(ctx, res.Items)
		return nil
	case domain.CartItemEcho:
		s.applyEcho(ctx, *res.Item)
		return nil
	case domain.CartAuthExpired:
		s.logger.Warn("cart add rejected by server, saving on device", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Info("Your session expired. The item was saved on this device.")
		if err := s.addLocal(ctx, productID, quantity, size); err != nil {
			return err
		}
		s.keepPending(ctx, domain.LineKey{ProductID: productID, Size: size}, quantity)
		return nil
	default:
		s.logger.Warn("cart add failed", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Error("Could not add the item to your cart.")
		s.heal(ctx)
		return fmt.Errorf("add to cart: %w", res.Err)
	}
}

func (s *Store) addLocal(ctx context.Context, productID string, quantity int, size string) error {
	key := domain.LineKey{ProductID: productID, Size: size}
	if s.bumpLocal(ctx, key, quantity) {
		return nil
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("catalog lookup failed", zap.String("product_id", productID), zap.Error(err))
		s.notifier.Error("Could not add the item to your cart.")
		return fmt.Errorf("add to cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := domain.IndexOf(s.items, key); i >= 0 {
		s.items[i].Quantity += quantity
	} else {
		s.items = append(s.items, domain.CartItem{
			ID:        s.newID(),
			ProductID: productID,
			Quantity:  quantity,
			Size:      size,
			Price:     product.Price,
			Name:      product.Name,
			Image:     product.PrimaryImage(),
		})
	}
	s.persistLocked(ctx)
	return nil
}

// keepPending records an add the server refused in the Local Snapshot so
// the next SignIn merges it instead of reloading over it.
func (s *Store) keepPending(ctx context.Context, key domain.LineKey, quantity int) {
	guestKey := snapshot.GuestKey(s.deviceID)
	pending, err := s.snapshots.Load(ctx, guestKey)
	if err != nil {
		s.logger.Warn("read local snapshot failed", zap.Error(err))
		pending = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := domain.IndexOf(pending, key); i >= 0 {
		pending[i].Quantity += quantity
	} else {
		line := domain.CartItem{ProductID: key.ProductID, Size: key.Size}
		if j := domain.IndexOf(s.items, key); j >= 0 {
			line = s.items[j]
		}
		line.Quantity = quantity
		pending = append(pending, line)
	}
	s.mergeAttempted = false
	if err := s.snapshots.Save(ctx, guestKey, pending); err != nil {
		s.logger.Warn("persist pending cart lines failed", zap.String("key", guestKey), zap.Error(err))
	}
}

// bumpLocal increases an existing line and reports whether one was found.
func (s *Store) bumpLocal(ctx context.Context, key domain.LineKey, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := domain.IndexOf(s.items, key)
	if i < 0 {
		return false
	}
	s.items[i].Quantity += quantity
	s.persistLocked(ctx)
	return true
}

// UpdateQuantity sets a line's quantity. Anything below 1 removes the line.
// Failures are notified, not returned.
func (s *Store) UpdateQuantity(ctx context.Context, productID, size string, quantity int) {
	if quantity < 1 {
		s.RemoveFromCart(ctx, productID, size)
		return
	}
	key := domain.LineKey{ProductID: productID, Size: size}

	owner, token := s.session()
	if owner == domain.OwnerLocal {
		s.setLocal(ctx, key, quantity)
		return
	}

	res := s.api.UpdateCartItem(ctx, token, domain.CartLineInput{ProductID: productID, Quantity: quantity, Size: size})
	switch res.Kind {
	case domain.CartItems:
		s.replace(ctx, res.Items)
	case domain.CartItemEcho:
		s.applyEcho(ctx, *res.Item)
	case domain.CartAuthExpired:
		s.logger.Warn("cart update rejected by server, saving on device", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Info("Your session expired. The change was saved on this device.")
		s.setLocal(ctx, key, quantity)
	default:
		s.logger.Warn("cart update failed", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Error("Could not update the quantity.")
		s.heal(ctx)
	}
}

func (s *Store) setLocal(ctx context.Context, key domain.LineKey, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := domain.IndexOf(s.items, key)
	if i < 0 {
		return
	}
	s.items[i].Quantity = quantity
	s.persistLocked(ctx)
}

// RemoveFromCart deletes a line. Failures are notified, not returned.
func (s *Store) RemoveFromCart(ctx context.Context, productID, size string) {
	key := domain.LineKey{ProductID: productID, Size: size}

	owner, token := s.session()
	if owner == domain.OwnerLocal {
		s.removeLocal(ctx, key)
		return
	}

	res := s.api.RemoveCartItem(ctx, token, key)
	switch res.Kind {
	case domain.CartItems:
		s.replace(ctx, res.Items)
	case domain.CartItemEcho:
		// The server echoed the removed line.
		s.removeLocal(ctx, key)
	case domain.CartAuthExpired:
		s.logger.Warn("cart remove rejected by server, saving on device", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Info("Your session expired. The change was saved on this device.")
		s.removeLocal(ctx, key)
	default:
		s.logger.Warn("cart remove failed", zap.String("product_id", productID), zap.Error(res.Err))
		s.notifier.Error("Could not remove the item.")
		s.heal(ctx)
	}
}

func (s *Store) removeLocal(ctx context.Context, key domain.LineKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := domain.IndexOf(s.items, key)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.persistLocked(ctx)
}

// ClearCart empties the cart. The server clear is best effort; local state
// and both snapshots are cleared regardless.
func (s *Store) ClearCart(ctx context.Context) {
	owner, token := s.session()
	if owner == domain.OwnerServer {
		if err := s.api.ClearCart(ctx, token); err != nil {
			s.logger.Warn("server cart clear failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.items = []domain.CartItem{}
	s.mu.Unlock()

	s.deleteSnapshot(ctx, snapshot.GuestKey(s.deviceID))
	s.deleteSnapshot(ctx, snapshot.BackupKey(s.deviceID))
}

// SyncCart merges the Local Snapshot into the server cart in one batch. An
// empty Local Snapshot only reloads the server cart. After a successful
// merge the Local Snapshot is discarded and the server list is mirrored to
// the device backup. Guests have nothing to sync.
func (s *Store) SyncCart(ctx context.Context) error {
	owner, token := s.session()
	if owner == domain.OwnerLocal {
		return nil
	}

	guestKey := snapshot.GuestKey(s.deviceID)
	local, err := s.snapshots.Load(ctx, guestKey)
	if err != nil {
		s.logger.Warn("read local snapshot failed", zap.Error(err))
		local = nil
	}
	if len(local) == 0 {
		return s.Refresh(ctx)
	}

	lines := make([]domain.CartLineInput, 0, len(local))
	for _, item := range local {
		lines = append(lines, domain.CartLineInput{ProductID: item.ProductID, Quantity: item.Quantity, Size: item.Size})
	}

	res := s.api.SyncCart(ctx, token, lines)
	switch res.Kind {
	case domain.CartItems:
		s.replace(ctx, res.Items)
		s.deleteSnapshot(ctx, guestKey)
		s.logger.Info("merged local cart into server cart", zap.Int("lines", len(lines)), zap.Int("result_lines", len(res.Items)))
		return nil
	case domain.CartItemEcho:
		res.Err = errors.New("sync returned a single line")
	}

	// The guest snapshot stays on the device so nothing is lost; show it
	// until the server can be reached.
	s.mu.Lock()
	s.items = local
	s.mu.Unlock()
	s.logger.Warn("cart merge failed", zap.Error(res.Err))
	s.notifier.Error("Could not merge your saved cart. Your items are kept on this device.")
	return fmt.Errorf("sync cart: %w", res.Err)
}

// Refresh replaces the in-memory list with the server cart. Concurrent
// callers share one request.
func (s *Store) Refresh(ctx context.Context) error {
	owner, token := s.session()
	if owner == domain.OwnerLocal {
		return nil
	}
	_, err, _ := s.refresh.Do("refresh", func() (any, error) {
		res := s.api.GetCart(ctx, token)
		switch res.Kind {
		case domain.CartItems:
			s.replace(ctx, res.Items)
			return nil, nil
		case domain.CartItemEcho:
			return nil, errors.New("cart fetch returned a single line")
		default:
			return nil, res.Err
		}
	})
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}
	return nil
}

func (s *Store) heal(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("cart self-heal failed", zap.Error(err))
	}
}

// SignIn is the authentication edge. The first sign-in of a session merges
// the Local Snapshot; later ones (token refresh) only reload, unless an add
// was saved on the device after the server rejected the session.
func (s *Store) SignIn(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return &domain.ValidationError{Field: "accessToken", Message: "access token is required"}
	}
	s.mu.Lock()
	s.owner = domain.OwnerServer
	s.token = token
	merge := !s.mergeAttempted
	s.mergeAttempted = true
	s.mu.Unlock()

	if merge {
		return s.SyncCart(ctx)
	}
	return s.Refresh(ctx)
}

// SignOut returns the cart to device ownership with an empty Local Snapshot.
// No merge happens in this direction.
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.owner = domain.OwnerLocal
	s.token = ""
	s.mergeAttempted = false
	s.items = []domain.CartItem{}
	s.mu.Unlock()

	s.deleteSnapshot(ctx, snapshot.BackupKey(s.deviceID))
	s.deleteSnapshot(ctx, snapshot.GuestKey(s.deviceID))
}

func (s *Store) replace(ctx context.Context, items []domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = domain.CloneItems(items)
	s.persistLocked(ctx)
}

// applyEcho folds a single echoed line into the list.
func (s *Store) applyEcho(ctx context.Context, item domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := domain.IndexOf(s.items, item.Key()); i >= 0 {
		s.items[i] = item
	} else {
		s.items = append(s.items, item)
	}
	s.persistLocked(ctx)
}

// persistLocked writes the list to the snapshot of the current owner.
// Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	key := snapshot.GuestKey(s.deviceID)
	if s.owner == domain.OwnerServer {
		key = snapshot.BackupKey(s.deviceID)
	}
	if err := s.snapshots.Save(ctx, key, s.items); err != nil {
		s.logger.Warn("persist cart snapshot failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) deleteSnapshot(ctx context.Context, key string) {
	if err := s.snapshots.Delete(ctx, key); err != nil {
		s.logger.Warn("delete cart snapshot failed", zap.String("key", key), zap.Error(err))
	}
}
