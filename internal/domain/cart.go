package domain

import "github.com/shopspring/decimal"

// CartOwner names the store that is authoritative for a shopper's cart.
type CartOwner string

const (
	OwnerLocal  CartOwner = "local"
	OwnerServer CartOwner = "server"
)

// CartItem is one cart line. Price, Name and Image are copied from the catalog
// when the line is added and are not refreshed afterwards.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Price     float64 `json:"price"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
}

// LineKey identifies a line inside a cart. It is unique per cart.
type LineKey struct {
	ProductID string
	Size      string
}

func (i CartItem) Key() LineKey {
	return LineKey{ProductID: i.ProductID, Size: i.Size}
}

// LineTotal returns price × quantity rounded to two places.
func (i CartItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// CartLineInput is the minimal line shape sent to the server cart.
type CartLineInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

// Subtotal sums price × quantity over items.
func Subtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// CartTotal is Subtotal as a float for display and wire use.
func CartTotal(items []CartItem) float64 {
	return Subtotal(items).InexactFloat64()
}

// CartQuantity sums the quantities of items.
func CartQuantity(items []CartItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

// IndexOf returns the position of the line with key, or -1.
func IndexOf(items []CartItem, key LineKey) int {
	for i, item := range items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// CloneItems returns a copy of items that never aliases the input.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// CartResultKind tags the outcome of a server cart call.
type CartResultKind int

const (
	// CartItems means the server returned the full authoritative list.
	CartItems CartResultKind = iota
	// CartItemEcho means the server echoed back only the touched line.
	CartItemEcho
	// CartAuthExpired means the server rejected the session (401/403).
	CartAuthExpired
	// CartFailure means the call failed for any other reason.
	CartFailure
)

// CartResult is the tagged result returned by the server cart API.
type CartResult struct {
	Kind  CartResultKind
	Items []CartItem
	Item  *CartItem
	Err   error
}

func ItemsResult(items []CartItem) CartResult {
	if items == nil {
		items = []CartItem{}
	}
	return CartResult{Kind: CartItems, Items: items}
}

func ItemEchoResult(item CartItem) CartResult {
	return CartResult{Kind: CartItemEcho, Item: &item}
}

func AuthExpiredResult(err error) CartResult {
	return CartResult{Kind: CartAuthExpired, Err: err}
}

func FailureResult(err error) CartResult {
	return CartResult{Kind: CartFailure, Err: err}
}
