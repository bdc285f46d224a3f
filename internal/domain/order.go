package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is immutable once created.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderItem keeps the unit price and name the product had at purchase time.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder snapshots the given cart items into a new order for userID.
func NewOrder(userID string, items []*LineItem, now time.Time) *Order {
	order := &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Total:     decimal.Zero,
		Items:     make([]OrderItem, 0, len(items)),
		CreatedAt: now,
	}
	for _, item := range items {
		oi := OrderItem{
			OrderID:     order.ID,
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Product.Price,
		}
		order.Items = append(order.Items, oi)
		order.Total = order.Total.Add(oi.Subtotal())
	}
	return order
}
