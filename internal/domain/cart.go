package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"user_id"`
	Items     []*LineItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}

// Total sums the subtotals of all items at current product prices.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// LineItem is one product in a cart. A cart holds at most one line per product.
type LineItem struct {
	ID        int64     `json:"id"`
	CartID    int64     `json:"cart_id"`
	Product   Product   `json:"product"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *LineItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ParseQuantity converts raw client input into a quantity.
func ParseQuantity(raw string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, InvalidInput("quantity must be an integer")
	}
	return q, nil
}
