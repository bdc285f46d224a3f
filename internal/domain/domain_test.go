package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItemSubtotal(t *testing.T) {
	item := &LineItem{
		Product:  Product{ID: 1, Price: decimal.RequireFromString("10.00")},
		Quantity: 3,
	}

	assert.True(t, decimal.RequireFromString("30.00").Equal(item.Subtotal()))
}

func TestCartTotal(t *testing.T) {
	cart := &Cart{Items: []*LineItem{
		{Product: Product{Price: decimal.RequireFromString("0.10")}, Quantity: 3},
		{Product: Product{Price: decimal.RequireFromString("19.99")}, Quantity: 2},
	}}

	assert.Equal(t, "40.28", cart.Total().StringFixed(2))
	assert.False(t, cart.IsEmpty())
	assert.True(t, (&Cart{}).IsEmpty())
}

func TestNewOrder_SnapshotsPrices(t *testing.T) {
	now := time.Now()
	items := []*LineItem{
		{Product: Product{ID: 1, Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5}, Quantity: 5},
		{Product: Product{ID: 2, Name: "Pen", Price: decimal.RequireFromString("1.25"), Stock: 10}, Quantity: 4},
	}

	order := NewOrder("user-1", items, now)
	items[0].Product.Price = decimal.RequireFromString("99.00")

	require.Len(t, order.Items, 2)
	assert.Equal(t, "55.00", order.Total.StringFixed(2))
	assert.Equal(t, "10.00", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Mug", order.Items[0].ProductName)
	assert.Equal(t, order.ID, order.Items[1].OrderID)
	assert.Equal(t, now, order.CreatedAt)
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, q)

	q, err = ParseQuantity("-2")
	require.NoError(t, err)
	assert.Equal(t, -2, q)

	for _, raw := range []string{"", "abc", "1.5", "2x"} {
		_, err := ParseQuantity(raw)
		assert.True(t, IsKind(err, KindInvalidInput), raw)
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("add item: %w", InsufficientStock(Product{Name: "Mug", Stock: 5}))

	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Contains(t, err.Error(), "only 5 units")
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("boom")))
	assert.False(t, IsKind(nil, KindUnknown))
	assert.Equal(t, "empty_cart", EmptyCart().Kind.String())
}
