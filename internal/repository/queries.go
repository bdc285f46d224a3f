package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

const productColumns = `p.id, p.name, p.description, p.price, p.stock, p.created_at`

const cartItemSelect = `SELECT ci.id, ci.cart_id, ci.quantity, ci.added_at, ci.updated_at, ` + productColumns + `
	FROM cart_items ci JOIN products p ON p.id = ci.product_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanLineItem(row rowScanner) (*domain.LineItem, error) {
	var item domain.LineItem
	p := &item.Product
	err := row.Scan(
		&item.ID, &item.CartID, &item.Quantity, &item.AddedAt, &item.UpdatedAt,
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", mapError(err))
	}
	return p, nil
}

func (s queries) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (s queries) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `INSERT INTO carts (user_id) VALUES ($1)
	          ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	          RETURNING id, user_id, created_at`

	var cart domain.Cart
	if err := s.q.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert cart: %w", mapError(err))
	}
	return &cart, nil
}

func (s queries) ListCartItems(ctx context.Context, cartID int64) ([]*domain.LineItem, error) {
	return s.listCartItems(ctx, cartItemSelect+` WHERE ci.cart_id = $1 ORDER BY ci.added_at, ci.id`, cartID)
}

func (s queries) ListCartItemsForUpdate(ctx context.Context, cartID int64) ([]*domain.LineItem, error) {
	return s.listCartItems(ctx, cartItemSelect+` WHERE ci.cart_id = $1 ORDER BY p.id FOR UPDATE OF p`, cartID)
}

func (s queries) listCartItems(ctx context.Context, query string, cartID int64) ([]*domain.LineItem, error) {
	rows, err := s.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", mapError(err))
	}
	defer rows.Close()

	items := make([]*domain.LineItem, 0)
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", mapError(err))
	}
	return items, nil
}

func (s queries) LockCart(ctx context.Context, cartID int64) error {
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err != nil {
		return fmt.Errorf("lock cart: %w", mapError(err))
	}
	return nil
}

func (s queries) GetCartItem(ctx context.Context, cartID, itemID int64) (*domain.LineItem, error) {
	row := s.q.QueryRowContext(ctx, cartItemSelect+` WHERE ci.id = $1 AND ci.cart_id = $2`, itemID, cartID)
	item, err := scanLineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", mapError(err))
	}
	return item, nil
}

func (s queries) FindCartItemByProduct(ctx context.Context, cartID, productID int64) (*domain.LineItem, error) {
	row := s.q.QueryRowContext(ctx, cartItemSelect+` WHERE ci.cart_id = $1 AND ci.product_id = $2`, cartID, productID)
	item, err := scanLineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item by product: %w", mapError(err))
	}
	return item, nil
}

func (s queries) InsertCartItem(ctx context.Context, item *domain.LineItem) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
	          RETURNING id, added_at, updated_at`

	err := s.q.QueryRowContext(ctx, query, item.CartID, item.Product.ID, item.Quantity).
		Scan(&item.ID, &item.AddedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", mapError(err))
	}
	return nil
}

func (s queries) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1`, itemID, quantity)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", mapError(err))
	}
	return expectOneRow(res, ErrItemNotFound)
}

func (s queries) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", mapError(err))
	}
	return expectOneRow(res, ErrItemNotFound)
}

func (s queries) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", mapError(err))
	}
	return nil
}

func (s queries) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", mapError(err))
	}
	if err := expectOneRow(res, ErrConflict); err != nil {
		return fmt.Errorf("decrement stock of product %d: %w", productID, err)
	}
	return nil
}

func (s queries) InsertOrder(ctx context.Context, order *domain.Order) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total, created_at) VALUES ($1, $2, $3, $4)`,
		order.ID, order.UserID, order.Total, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapError(err))
	}
	return nil
}

func (s queries) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := s.q.QueryRowContext(ctx, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", mapError(err))
	}
	return nil
}

func (s queries) InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AggregateID, event.EventType, event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", mapError(err))
	}
	return nil
}

func (s queries) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, total, created_at FROM orders WHERE id = $1`, id).
		Scan(&order.ID, &order.UserID, &order.Total, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	items, err := s.orderItems(ctx, []*domain.Order{&order})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

func (s queries) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, total, created_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Total, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := s.orderItems(ctx, orders)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		order.Items = items[order.ID]
	}
	return orders, nil
}

func (s queries) orderItems(ctx context.Context, orders []*domain.Order) (map[uuid.UUID][]domain.OrderItem, error) {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price
		 FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[uuid.UUID][]domain.OrderItem, len(orders))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return byOrder, nil
}

func expectOneRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
