package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrOrderNotFound   = errors.New("order not found")
	// ErrConflict marks failures caused by concurrent transactions: lock timeouts,
	// serialization failures, deadlocks and guarded updates that matched no row.
	// The whole transaction may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
	LockTimeout       time.Duration
}

const EventOrderCreated = "order.created"

type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Queries are usable both inside and outside a transaction.
type Queries interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	// GetOrCreateCart is idempotent and never creates a second cart for a user.
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)
	ListCartItems(ctx context.Context, cartID int64) ([]*domain.LineItem, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
}

type Tx interface {
	Queries
	// LockCart blocks other transactions mutating the same cart until this one ends.
	LockCart(ctx context.Context, cartID int64) error
	GetCartItem(ctx context.Context, cartID, itemID int64) (*domain.LineItem, error)
	FindCartItemByProduct(ctx context.Context, cartID, productID int64) (*domain.LineItem, error)
	// ListCartItemsForUpdate also locks the referenced product rows.
	ListCartItemsForUpdate(ctx context.Context, cartID int64) ([]*domain.LineItem, error)
	InsertCartItem(ctx context.Context, item *domain.LineItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOrderItem(ctx context.Context, item *domain.OrderItem) error
	InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

// Store runs fn in a single transaction: every write made through tx is
// committed when fn returns nil and discarded otherwise.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error
}
