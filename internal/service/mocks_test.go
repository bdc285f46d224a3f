package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/fjod/go_cart/internal/repository/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockCache struct {
	mu        sync.RWMutex
	carts     map[string]*domain.Cart
	getErr    error
	sets      int
	deletes   int
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	if m.beforeSet != nil {
		m.beforeSet()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = cart
	m.sets++
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.deletes++
	return nil
}

func (m *mockCache) has(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

// faultyStore injects failures into transactions of the wrapped store.
type faultyStore struct {
	repository.Store
	orderItemErr  error
	conflictsLeft int
	attempts      int
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx repository.Tx) error {
		f.attempts++
		return fn(&faultyTx{Tx: tx, store: f})
	})
}

type faultyTx struct {
	repository.Tx
	store *faultyStore
}

func (t *faultyTx) LockCart(ctx context.Context, cartID int64) error {
	if t.store.conflictsLeft > 0 {
		t.store.conflictsLeft--
		return repository.ErrConflict
	}
	return t.Tx.LockCart(ctx, cartID)
}

func (t *faultyTx) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	if t.store.orderItemErr != nil {
		return t.store.orderItemErr
	}
	return t.Tx.InsertOrderItem(ctx, item)
}

// blockingStore holds ListCartItems until release is closed and reports the
// context state the load saw at that point.
type blockingStore struct {
	repository.Store
	entered chan struct{}
	release chan struct{}
	seen    chan error
}

func newBlockingStore(store repository.Store) *blockingStore {
	return &blockingStore{
		Store:   store,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		seen:    make(chan error, 1),
	}
}

func (b *blockingStore) ListCartItems(ctx context.Context, cartID int64) ([]*domain.LineItem, error) {
	b.entered <- struct{}{}
	<-b.release
	b.seen <- ctx.Err()
	return b.Store.ListCartItems(ctx, cartID)
}

var errInjected = errors.New("injected failure")

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

type fixture struct {
	store    *memory.Store
	faulty   *faultyStore
	cache    *mockCache
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
	product  domain.Product
}

// setupFixture wires the services over a memory store holding one product
// priced 10.00 with 5 units in stock.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	product := store.PutProduct(domain.Product{
		Name:  "Widget",
		Price: decimal.RequireFromString("10.00"),
		Stock: 5,
	})

	faulty := &faultyStore{Store: store}
	c := newMockCache()
	logger := zap.NewNop()
	carts := NewCartService(faulty, c, testRetryPolicy(), logger)

	return &fixture{
		store:    store,
		faulty:   faulty,
		cache:    c,
		carts:    carts,
		checkout: NewCheckoutService(faulty, carts, testRetryPolicy(), logger),
		orders:   NewOrderService(faulty),
		product:  product,
	}
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func (f *fixture) items(t *testing.T, userID string) []*domain.LineItem {
	t.Helper()
	ctx := context.Background()
	cart, err := f.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	items, err := f.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return items
}
