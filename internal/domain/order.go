package domain

// PaymentMethod selects the checkout branch.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCash
}

// OrderStatus is the server-side order status.
type OrderStatus string

const (
	// OrderPending is a cash-on-delivery order, actionable by fulfillment.
	OrderPending OrderStatus = "pending"
	// OrderProcessing is a card order awaiting payment.
	OrderProcessing OrderStatus = "processing"
	OrderPaid       OrderStatus = "paid"
	OrderCancelled  OrderStatus = "cancelled"
)

// ShippingAddress holds the checkout form fields.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Price     float64 `json:"price"`
	Name      string  `json:"name,omitempty"`
}

// Order is the client's read-only copy of a created order. ID never changes
// once assigned and links payment transactions back to the order.
type Order struct {
	ID               string          `json:"id"`
	Items            []OrderItem     `json:"items"`
	ShippingAddress  ShippingAddress `json:"shippingAddress"`
	Total            float64         `json:"total"`
	Tax              float64         `json:"tax"`
	DeliveryFee      float64         `json:"deliveryFee"`
	Status           OrderStatus     `json:"status"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty"`
}

// CreateOrderInput is the body of POST /orders.
type CreateOrderInput struct {
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Total           float64         `json:"total"`
	Tax             float64         `json:"tax"`
	DeliveryFee     float64         `json:"deliveryFee"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
}

// OrderItemsFrom copies cart lines into order lines.
func OrderItemsFrom(items []CartItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Price:     item.Price,
			Name:      item.Name,
		})
	}
	return out
}
