package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, domain.Product) {
	t.Helper()
	s := NewStore()
	p := s.PutProduct(domain.Product{Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5})
	return s, p
}

func TestGetOrCreateCart_SameCartPerUser(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)
	b, err := s.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)
	c, err := s.GetOrCreateCart(ctx, "user-2")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()
	cart, err := s.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertCartItem(ctx, &domain.LineItem{CartID: cart.ID, Product: p, Quantity: 2})
	})
	require.NoError(t, err)

	items, err := s.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Widget", items[0].Product.Name)
}

func TestWithinTx_DiscardsOnError(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.DecrementStock(ctx, p.ID, 3))
		order := &domain.Order{ID: uuid.New(), UserID: "user-1", Total: decimal.RequireFromString("30.00"), CreatedAt: time.Now()}
		require.NoError(t, tx.InsertOrder(ctx, order))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	orders, err := s.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestWithinTx_CanceledContextDiscards(t *testing.T) {
	s, p := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		cancel()
		return tx.DecrementStock(ctx, p.ID, 1)
	})
	assert.ErrorIs(t, err, context.Canceled)

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestInsertCartItem_OneLinePerProduct(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()
	cart, _ := s.GetOrCreateCart(ctx, "user-1")

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.InsertCartItem(ctx, &domain.LineItem{CartID: cart.ID, Product: p, Quantity: 1}))
		return tx.InsertCartItem(ctx, &domain.LineItem{CartID: cart.ID, Product: p, Quantity: 1})
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestDecrementStock_NeverNegative(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.DecrementStock(ctx, p.ID, 6)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCartItemOwnership(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()
	mine, _ := s.GetOrCreateCart(ctx, "user-1")
	theirs, _ := s.GetOrCreateCart(ctx, "user-2")

	item := &domain.LineItem{CartID: mine.ID, Product: p, Quantity: 1}
	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertCartItem(ctx, item)
	}))

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.GetCartItem(ctx, theirs.ID, item.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrItemNotFound)
}

func TestOrdersNewestFirst(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()
	base := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := &domain.Order{ID: uuid.New(), UserID: "user-1", Total: p.Price, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		ids = append(ids, order.ID)
		require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			return tx.InsertOrderItem(ctx, &domain.OrderItem{OrderID: order.ID, ProductID: p.ID, Quantity: 1, UnitPrice: p.Price})
		}))
	}

	orders, err := s.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[0], orders[2].ID)
	assert.Len(t, orders[1].Items, 1)

	_, err = s.GetOrderByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestOutboxEvents(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	ev := &repository.OutboxEvent{ID: uuid.New(), AggregateID: "order-1", EventType: repository.EventOrderCreated, Payload: []byte(`{}`)}
	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertOutboxEvent(ctx, ev)
	}))

	events, err := s.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, s.MarkEventAsProcessed(ctx, ev.ID))
	events, err = s.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
