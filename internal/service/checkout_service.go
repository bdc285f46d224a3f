package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/metrics"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CheckoutService converts a cart into an order in a single transaction.
type CheckoutService struct {
	store  repository.Store
	carts  *CartService
	retry  RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewCheckoutService(store repository.Store, carts *CartService, retry RetryPolicy, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		store:  store,
		carts:  carts,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// Checkout places an order for everything in the caller's cart. Stock is
// re-checked under row locks; either the order is created, stock decremented
// and the cart emptied, or nothing changes.
func (s *CheckoutService) Checkout(ctx context.Context, userID string) (order *domain.Order, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "CheckoutService.Checkout", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() {
		metrics.Checkouts.WithLabelValues(metrics.Result(err)).Inc()
		metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
		endSpan(span, err)
	}()

	err = s.retry.run(ctx, "checkout", s.logger, func() error {
		order = nil
		return s.store.WithinTx(ctx, func(tx repository.Tx) error {
			placed, err := s.placeOrder(ctx, tx, userID)
			if err != nil {
				return err
			}
			order = placed
			return nil
		})
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			s.logger.Error("checkout failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, fmt.Errorf("checkout: %w", err)
	}

	s.carts.invalidateCache(userID)
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	s.logger.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(order.Items)))
	return order, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, tx repository.Tx, userID string) (*domain.Order, error) {
	cart, err := lockedCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	items, err := tx.ListCartItemsForUpdate(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.EmptyCart()
	}
	for _, item := range items {
		if !item.Product.Covers(item.Quantity) {
			return nil, domain.InsufficientStock(item.Product)
		}
	}

	order := domain.NewOrder(userID, items, s.now().UTC())
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	for i := range order.Items {
		item := &order.Items[i]
		if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		if err := tx.InsertOrderItem(ctx, item); err != nil {
			return nil, err
		}
	}
	if err := tx.ClearCart(ctx, cart.ID); err != nil {
		return nil, err
	}

	event, err := orderCreatedEvent(order)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertOutboxEvent(ctx, event); err != nil {
		return nil, err
	}
	return order, nil
}

type orderCreatedPayload struct {
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id"`
	Total     string                 `json:"total"`
	Items     []orderCreatedLineItem `json:"items"`
	CreatedAt time.Time              `json:"created_at"`
}

type orderCreatedLineItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

func orderCreatedEvent(order *domain.Order) (*repository.OutboxEvent, error) {
	payload := orderCreatedPayload{
		OrderID:   order.ID.String(),
		UserID:    order.UserID,
		Total:     order.Total.StringFixed(2),
		Items:     make([]orderCreatedLineItem, 0, len(order.Items)),
		CreatedAt: order.CreatedAt,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderCreatedLineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Subtotal:    item.Subtotal().StringFixed(2),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order created payload: %w", err)
	}
	return &repository.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: order.ID.String(),
		EventType:   repository.EventOrderCreated,
		Payload:     data,
		CreatedAt:   order.CreatedAt,
	}, nil
}
