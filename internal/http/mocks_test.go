package http

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/service"
	"github.com/google/uuid"
)

type CartServiceMock struct {
	mu           sync.Mutex
	cart         *domain.Cart
	change       *service.ItemChange
	err          error
	lastUserID   string
	lastID       int64
	lastQuantity int
}

func (m *CartServiceMock) ViewCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	return m.cart, m.err
}

func (m *CartServiceMock) AddItem(_ context.Context, userID string, productID int64, quantity int) (*service.ItemChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID, m.lastID, m.lastQuantity = userID, productID, quantity
	return m.change, m.err
}

func (m *CartServiceMock) UpdateItemQuantity(_ context.Context, userID string, itemID int64, quantity int) (*service.ItemChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID, m.lastID, m.lastQuantity = userID, itemID, quantity
	return m.change, m.err
}

func (m *CartServiceMock) RemoveItem(_ context.Context, userID string, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID, m.lastID = userID, itemID
	return m.err
}

type CheckoutServiceMock struct {
	order *domain.Order
	err   error
}

func (m CheckoutServiceMock) Checkout(context.Context, string) (*domain.Order, error) {
	return m.order, m.err
}

type OrderServiceMock struct {
	orders []*domain.Order
	err    error
}

func (m OrderServiceMock) ListOrders(context.Context, string) ([]*domain.Order, error) {
	return m.orders, m.err
}

func (m OrderServiceMock) GetOrder(_ context.Context, _ string, id uuid.UUID) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, domain.NotFound("order %s not found", id)
}

type CatalogMock struct {
	products []*domain.Product
	err      error
}

func (m CatalogMock) ListProducts(context.Context) ([]*domain.Product, error) {
	return m.products, m.err
}

func (m CatalogMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.NotFound("product %d not found", id)
}
