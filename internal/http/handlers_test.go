package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testOrder(userID string) *domain.Order {
	id := uuid.New()
	return &domain.Order{
		ID:     id,
		UserID: userID,
		Total:  decimal.RequireFromString("30.00"),
		Items: []domain.OrderItem{{
			ID:          1,
			OrderID:     id,
			ProductID:   3,
			ProductName: "Widget",
			Quantity:    3,
			UnitPrice:   decimal.RequireFromString("10.00"),
		}},
		CreatedAt: time.Now(),
	}
}

func TestCheckout_Created(t *testing.T) {
	order := testOrder("user-1")
	handler := NewCheckoutHandler(CheckoutServiceMock{order: order}, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Checkout(rec, newRequest(http.MethodPost, "", "user-1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/orders/"+order.ID.String(), rec.Header().Get("Location"))

	var resp OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, order.ID.String(), resp.ID)
	assert.Equal(t, "30.00", resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "10.00", resp.Items[0].UnitPrice)
	assert.Equal(t, "30.00", resp.Items[0].Subtotal)
}

func TestCheckout_Errors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty cart", domain.EmptyCart(), http.StatusBadRequest, "empty_cart"},
		{"stock", domain.InsufficientStock(domain.Product{Name: "Widget", Stock: 1}), http.StatusBadRequest, "insufficient_stock"},
		{"conflict", domain.TransientConflict("checkout: try again"), http.StatusConflict, "transient_conflict"},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewCheckoutHandler(CheckoutServiceMock{err: tc.err}, 5*time.Second, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.Checkout(rec, newRequest(http.MethodPost, "", "user-1"))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestCheckout_Unauthorized(t *testing.T) {
	handler := NewCheckoutHandler(CheckoutServiceMock{}, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Checkout(rec, newRequest(http.MethodPost, "", ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOrders(t *testing.T) {
	orders := []*domain.Order{testOrder("user-1"), testOrder("user-1")}
	handler := NewOrdersHandler(OrderServiceMock{orders: orders}, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListOrders(rec, newRequest(http.MethodGet, "", "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, orders[0].ID.String(), resp[0].ID)
}

func TestListOrders_EmptyIsArray(t *testing.T) {
	handler := NewOrdersHandler(OrderServiceMock{}, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListOrders(rec, newRequest(http.MethodGet, "", "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetOrder(t *testing.T) {
	order := testOrder("user-1")
	handler := NewOrdersHandler(OrderServiceMock{orders: []*domain.Order{order}}, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetOrder(rec, withURLParam(newRequest(http.MethodGet, "", "user-1"), "order_id", order.ID.String()))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetOrder(rec, withURLParam(newRequest(http.MethodGet, "", "user-1"), "order_id", uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetOrder(rec, withURLParam(newRequest(http.MethodGet, "", "user-1"), "order_id", "not-a-uuid"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts(t *testing.T) {
	catalog := CatalogMock{products: []*domain.Product{
		{ID: 1, Name: "Ceramic Mug", Price: decimal.RequireFromString("10"), Stock: 5},
		{ID: 2, Name: "Notebook", Price: decimal.RequireFromString("7.5"), Stock: 40},
	}}
	handler := NewProductHandler(catalog, 5*time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListProducts(rec, newRequest(http.MethodGet, "", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ProductResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "10.00", list[0].Price)
	assert.Equal(t, "7.50", list[1].Price)

	rec = httptest.NewRecorder()
	handler.GetProduct(rec, withURLParam(newRequest(http.MethodGet, "", ""), "product_id", "2"))
	require.Equal(t, http.StatusOK, rec.Code)
	var one ProductResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&one))
	assert.Equal(t, "Notebook", one.Name)

	rec = httptest.NewRecorder()
	handler.GetProduct(rec, withURLParam(newRequest(http.MethodGet, "", ""), "product_id", "99"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetProduct(rec, withURLParam(newRequest(http.MethodGet, "", ""), "product_id", "0"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
