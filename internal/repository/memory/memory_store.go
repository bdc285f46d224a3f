// Package memory is a process-local implementation of repository.Store.
// Transactions are serialized and applied copy-on-write, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	_ repository.Store            = (*Store)(nil)
	_ repository.OutboxRepository = (*Store)(nil)
	_ repository.Tx               = (*state)(nil)
)

type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates a store holding the given catalog. Products with a zero ID get one assigned.
func NewStore(products ...domain.Product) *Store {
	s := &Store{state: newState(time.Now)}
	for _, p := range products {
		s.state.putProduct(p)
	}
	return s
}

// DemoCatalog is the catalog used when the service runs without a database.
func DemoCatalog() []domain.Product {
	return []domain.Product{
		{Name: "Ceramic Mug", Description: "350ml stoneware mug", Price: decimal.RequireFromString("10.00"), Stock: 5},
		{Name: "Notebook", Description: "A5 dotted notebook, 120 pages", Price: decimal.RequireFromString("7.50"), Stock: 40},
		{Name: "Fountain Pen", Description: "Steel nib, medium", Price: decimal.RequireFromString("24.90"), Stock: 12},
		{Name: "Desk Lamp", Description: "LED, adjustable arm", Price: decimal.RequireFromString("39.99"), Stock: 3},
	}
}

// PutProduct inserts or replaces a catalog entry and returns it with its ID.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.putProduct(p)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListProducts(ctx)
}

func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetOrCreateCart(ctx, userID)
}

func (s *Store) ListCartItems(ctx context.Context, cartID int64) ([]*domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListCartItems(ctx, cartID)
}

func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetOrderByID(ctx, id)
}

func (s *Store) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListOrdersByUserID(ctx, userID)
}

func (s *Store) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*repository.OutboxEvent
	for _, ev := range s.state.outbox {
		if ev.ProcessedAt != nil {
			continue
		}
		e := *ev
		events = append(events, &e)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) MarkEventAsProcessed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.state.outbox {
		if ev.ID == id {
			now := s.state.now()
			ev.ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

type cartRow struct {
	id        int64
	userID    string
	createdAt time.Time
}

type itemRow struct {
	id        int64
	cartID    int64
	productID int64
	quantity  int
	addedAt   time.Time
	updatedAt time.Time
}

// state is one snapshot of the data. It implements repository.Tx; the context
// arguments are unused because nothing blocks.
type state struct {
	now      func() time.Time
	products map[int64]domain.Product
	carts    map[string]cartRow
	items    map[int64]itemRow
	orders   map[uuid.UUID]*domain.Order
	outbox   []*repository.OutboxEvent

	nextProductID   int64
	nextCartID      int64
	nextItemID      int64
	nextOrderItemID int64
}

func newState(now func() time.Time) *state {
	return &state{
		now:      now,
		products: make(map[int64]domain.Product),
		carts:    make(map[string]cartRow),
		items:    make(map[int64]itemRow),
		orders:   make(map[uuid.UUID]*domain.Order),
	}
}

func (st *state) clone() *state {
	c := *st
	c.products = make(map[int64]domain.Product, len(st.products))
	for k, v := range st.products {
		c.products[k] = v
	}
	c.carts = make(map[string]cartRow, len(st.carts))
	for k, v := range st.carts {
		c.carts[k] = v
	}
	c.items = make(map[int64]itemRow, len(st.items))
	for k, v := range st.items {
		c.items[k] = v
	}
	c.orders = make(map[uuid.UUID]*domain.Order, len(st.orders))
	for k, v := range st.orders {
		o := *v
		o.Items = slices.Clone(v.Items)
		c.orders[k] = &o
	}
	c.outbox = make([]*repository.OutboxEvent, 0, len(st.outbox))
	for _, ev := range st.outbox {
		e := *ev
		c.outbox = append(c.outbox, &e)
	}
	return &c
}

func (st *state) putProduct(p domain.Product) domain.Product {
	if p.ID == 0 {
		st.nextProductID++
		p.ID = st.nextProductID
	} else if p.ID > st.nextProductID {
		st.nextProductID = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = st.now()
	}
	st.products[p.ID] = p
	return p
}

func (st *state) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (st *state) ListProducts(_ context.Context) ([]*domain.Product, error) {
	products := make([]*domain.Product, 0, len(st.products))
	for _, p := range st.products {
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (st *state) GetOrCreateCart(_ context.Context, userID string) (*domain.Cart, error) {
	row, ok := st.carts[userID]
	if !ok {
		st.nextCartID++
		row = cartRow{id: st.nextCartID, userID: userID, createdAt: st.now()}
		st.carts[userID] = row
	}
	return &domain.Cart{ID: row.id, UserID: row.userID, CreatedAt: row.createdAt}, nil
}

func (st *state) cartExists(cartID int64) bool {
	for _, c := range st.carts {
		if c.id == cartID {
			return true
		}
	}
	return false
}

func (st *state) LockCart(_ context.Context, cartID int64) error {
	if !st.cartExists(cartID) {
		return fmt.Errorf("lock cart %d: not found", cartID)
	}
	return nil
}

func (st *state) lineItem(row itemRow) *domain.LineItem {
	return &domain.LineItem{
		ID:        row.id,
		CartID:    row.cartID,
		Product:   st.products[row.productID],
		Quantity:  row.quantity,
		AddedAt:   row.addedAt,
		UpdatedAt: row.updatedAt,
	}
}

func (st *state) ListCartItems(_ context.Context, cartID int64) ([]*domain.LineItem, error) {
	items := make([]*domain.LineItem, 0)
	for _, row := range st.items {
		if row.cartID == cartID {
			items = append(items, st.lineItem(row))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (st *state) ListCartItemsForUpdate(ctx context.Context, cartID int64) ([]*domain.LineItem, error) {
	items, err := st.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Product.ID < items[j].Product.ID })
	return items, nil
}

func (st *state) GetCartItem(_ context.Context, cartID, itemID int64) (*domain.LineItem, error) {
	row, ok := st.items[itemID]
	if !ok || row.cartID != cartID {
		return nil, repository.ErrItemNotFound
	}
	return st.lineItem(row), nil
}

func (st *state) FindCartItemByProduct(_ context.Context, cartID, productID int64) (*domain.LineItem, error) {
	for _, row := range st.items {
		if row.cartID == cartID && row.productID == productID {
			return st.lineItem(row), nil
		}
	}
	return nil, repository.ErrItemNotFound
}

func (st *state) InsertCartItem(ctx context.Context, item *domain.LineItem) error {
	if _, err := st.FindCartItemByProduct(ctx, item.CartID, item.Product.ID); err == nil {
		return fmt.Errorf("insert cart item: %w", repository.ErrConflict)
	}
	if _, ok := st.products[item.Product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("insert cart item: quantity must be positive, got %d", item.Quantity)
	}

	st.nextItemID++
	now := st.now()
	item.ID = st.nextItemID
	item.AddedAt = now
	item.UpdatedAt = now
	st.items[item.ID] = itemRow{
		id:        item.ID,
		cartID:    item.CartID,
		productID: item.Product.ID,
		quantity:  item.Quantity,
		addedAt:   now,
		updatedAt: now,
	}
	return nil
}

func (st *state) UpdateCartItemQuantity(_ context.Context, itemID int64, quantity int) error {
	row, ok := st.items[itemID]
	if !ok {
		return repository.ErrItemNotFound
	}
	if quantity <= 0 {
		return fmt.Errorf("update cart item: quantity must be positive, got %d", quantity)
	}
	row.quantity = quantity
	row.updatedAt = st.now()
	st.items[itemID] = row
	return nil
}

func (st *state) DeleteCartItem(_ context.Context, itemID int64) error {
	if _, ok := st.items[itemID]; !ok {
		return repository.ErrItemNotFound
	}
	delete(st.items, itemID)
	return nil
}

func (st *state) ClearCart(_ context.Context, cartID int64) error {
	for id, row := range st.items {
		if row.cartID == cartID {
			delete(st.items, id)
		}
	}
	return nil
}

func (st *state) DecrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := st.products[productID]
	if !ok || p.Stock < quantity {
		return fmt.Errorf("decrement stock of product %d: %w", productID, repository.ErrConflict)
	}
	p.Stock -= quantity
	st.products[productID] = p
	return nil
}

func (st *state) InsertOrder(_ context.Context, order *domain.Order) error {
	if _, exists := st.orders[order.ID]; exists {
		return fmt.Errorf("insert order: %w", repository.ErrConflict)
	}
	st.orders[order.ID] = &domain.Order{
		ID:        order.ID,
		UserID:    order.UserID,
		Total:     order.Total,
		CreatedAt: order.CreatedAt,
	}
	return nil
}

func (st *state) InsertOrderItem(_ context.Context, item *domain.OrderItem) error {
	order, ok := st.orders[item.OrderID]
	if !ok {
		return fmt.Errorf("insert order item: order %s not found", item.OrderID)
	}
	st.nextOrderItemID++
	item.ID = st.nextOrderItemID
	order.Items = append(order.Items, *item)
	return nil
}

func (st *state) InsertOutboxEvent(_ context.Context, event *repository.OutboxEvent) error {
	e := *event
	st.outbox = append(st.outbox, &e)
	return nil
}

func (st *state) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := st.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o := *order
	o.Items = slices.Clone(order.Items)
	return &o, nil
}

func (st *state) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	orders := make([]*domain.Order, 0)
	for _, order := range st.orders {
		if order.UserID != userID {
			continue
		}
		o := *order
		o.Items = slices.Clone(order.Items)
		orders = append(orders, &o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}
