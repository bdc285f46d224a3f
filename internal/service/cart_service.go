package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/metrics"
	"github.com/fjod/go_cart/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// viewLoadTimeout bounds a shared cart load once it no longer follows the caller's context.
const viewLoadTimeout = 5 * time.Second

type CartService struct {
	store  repository.Store
	cache  cache.CartCache
	retry  RetryPolicy
	logger *zap.Logger
	sfg    singleflight.Group // collapses concurrent cache misses per user

	// generations counts mutations per user so a view loaded before a
	// mutation is never written to the cache after it.
	generations sync.Map // userID -> *atomic.Uint64
}

func NewCartService(store repository.Store, cartCache cache.CartCache, retry RetryPolicy, logger *zap.Logger) *CartService {
	return &CartService{
		store:  store,
		cache:  cartCache,
		retry:  retry,
		logger: logger,
	}
}

// ItemChange is the outcome of a quantity change. Removed is set when the
// line no longer exists (or was never created) because the quantity fell to zero or below.
type ItemChange struct {
	Item    *domain.LineItem
	Removed bool
}

func (s *CartService) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

// ViewCart returns the caller's cart with its items, creating an empty cart on first use.
func (s *CartService) ViewCart(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	ctx, span := tracer.Start(ctx, "CartService.ViewCart", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	// The shared load ignores the first caller's cancellation; each caller
	// still gives up on its own ctx.
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), viewLoadTimeout)
		defer cancel()

		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			metrics.CartCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.CartCacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CartCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		gen := s.generation(userID).Load()
		loaded, err := s.loadCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		go s.fillCache(userID, gen, loaded)
		return loaded, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CartService) loadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	cart.Items = items
	return cart, nil
}

// AddItem changes the quantity of productID in the cart by quantity, which may be negative.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (change *ItemChange, err error) {
	ctx, span := tracer.Start(ctx, "CartService.AddItem", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", quantity)))
	defer func() {
		metrics.CartOperations.WithLabelValues("add_item", metrics.Result(err)).Inc()
		endSpan(span, err)
	}()

	err = s.mutate(ctx, "add_item", userID, func(tx repository.Tx, cart *domain.Cart) error {
		product, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, repository.ErrProductNotFound) {
			return domain.NotFound("product %d not found", productID)
		}
		if err != nil {
			return err
		}

		existing, err := tx.FindCartItemByProduct(ctx, cart.ID, productID)
		if err != nil && !errors.Is(err, repository.ErrItemNotFound) {
			return err
		}

		held := 0
		if existing != nil {
			held = existing.Quantity
		}
		// held is bounded by stored quantities, so neither side overflows.
		if quantity > product.Stock-held {
			return domain.InsufficientStock(*product)
		}
		resulting := held + quantity

		switch {
		case resulting <= 0 && existing == nil:
			change = &ItemChange{Removed: true}
		case resulting <= 0:
			if err := tx.DeleteCartItem(ctx, existing.ID); err != nil {
				return err
			}
			change = &ItemChange{Removed: true}
		case existing == nil:
			item := &domain.LineItem{CartID: cart.ID, Product: *product, Quantity: resulting}
			if err := tx.InsertCartItem(ctx, item); err != nil {
				return err
			}
			change = &ItemChange{Item: item}
		default:
			if err := tx.UpdateCartItemQuantity(ctx, existing.ID, resulting); err != nil {
				return err
			}
			existing.Product = *product
			existing.Quantity = resulting
			existing.UpdatedAt = time.Now()
			change = &ItemChange{Item: existing}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	return change, nil
}

// UpdateItemQuantity sets an absolute quantity on a line of the caller's cart.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID string, itemID int64, quantity int) (change *ItemChange, err error) {
	ctx, span := tracer.Start(ctx, "CartService.UpdateItemQuantity", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("item.id", itemID),
		attribute.Int("quantity", quantity)))
	defer func() {
		metrics.CartOperations.WithLabelValues("update_item", metrics.Result(err)).Inc()
		endSpan(span, err)
	}()

	err = s.mutate(ctx, "update_item", userID, func(tx repository.Tx, cart *domain.Cart) error {
		item, err := ownedItem(ctx, tx, cart, itemID)
		if err != nil {
			return err
		}
		if !item.Product.Covers(quantity) {
			return domain.InsufficientStock(item.Product)
		}

		if quantity <= 0 {
			if err := tx.DeleteCartItem(ctx, item.ID); err != nil {
				return err
			}
			change = &ItemChange{Removed: true}
			return nil
		}

		if err := tx.UpdateCartItemQuantity(ctx, item.ID, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		item.UpdatedAt = time.Now()
		change = &ItemChange{Item: item}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update item quantity: %w", err)
	}
	return change, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, itemID int64) (err error) {
	ctx, span := tracer.Start(ctx, "CartService.RemoveItem", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("item.id", itemID)))
	defer func() {
		metrics.CartOperations.WithLabelValues("remove_item", metrics.Result(err)).Inc()
		endSpan(span, err)
	}()

	err = s.mutate(ctx, "remove_item", userID, func(tx repository.Tx, cart *domain.Cart) error {
		item, err := ownedItem(ctx, tx, cart, itemID)
		if err != nil {
			return err
		}
		return tx.DeleteCartItem(ctx, item.ID)
	})
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

// mutate runs fn in a transaction holding the lock on the user's cart and
// drops the cached view once the transaction committed.
func (s *CartService) mutate(ctx context.Context, op, userID string, fn func(tx repository.Tx, cart *domain.Cart) error) error {
	err := s.retry.run(ctx, op, s.logger, func() error {
		return s.store.WithinTx(ctx, func(tx repository.Tx) error {
			cart, err := lockedCart(ctx, tx, userID)
			if err != nil {
				return err
			}
			return fn(tx, cart)
		})
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			s.logger.Error("cart mutation failed", zap.String("operation", op), zap.String("user_id", userID), zap.Error(err))
		}
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func lockedCart(ctx context.Context, tx repository.Tx, userID string) (*domain.Cart, error) {
	cart, err := tx.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.LockCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

func ownedItem(ctx context.Context, tx repository.Tx, cart *domain.Cart, itemID int64) (*domain.LineItem, error) {
	item, err := tx.GetCartItem(ctx, cart.ID, itemID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, domain.NotFound("item %d not found in cart", itemID)
	}
	return item, err
}

func (s *CartService) generation(userID string) *atomic.Uint64 {
	v, _ := s.generations.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (s *CartService) fillCache(userID string, gen uint64, cart *domain.Cart) {
	if s.generation(userID).Load() != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.logger.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	// A mutation that deleted while Set was in flight has bumped the generation by now.
	if s.generation(userID).Load() != gen {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *CartService) invalidateCache(userID string) {
	s.generation(userID).Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
