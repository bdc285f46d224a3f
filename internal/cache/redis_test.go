package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 2*time.Minute), mr
}

func testCart(userID string) *domain.Cart {
	return &domain.Cart{
		ID:     7,
		UserID: userID,
		Items: []*domain.LineItem{
			{
				ID:       1,
				CartID:   7,
				Product:  domain.Product{ID: 1, Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5},
				Quantity: 3,
			},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSetThenGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user-1", testCart("user-1")))

	got, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "30.00", got.Total().StringFixed(2))
}

func TestGet_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_CorruptedPayload(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("user-1"), "{not json"))

	_, err := cache.Get(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_TTLWithJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, cache.Set(context.Background(), "user-1", testCart("user-1")))

	ttl := mr.TTL(cacheKey("user-1"))
	assert.GreaterOrEqual(t, ttl, 2*time.Minute)
	assert.LessOrEqual(t, ttl, 2*time.Minute+30*time.Second)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "user-1", testCart("user-1")))

	require.NoError(t, cache.Delete(ctx, "user-1"))
	assert.False(t, mr.Exists(cacheKey("user-1")))

	require.NoError(t, cache.Delete(ctx, "user-1"))
}

func TestRedisDown_ReturnsError(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

type failingCache struct {
	calls int
}

func (f *failingCache) Get(context.Context, string) (*domain.Cart, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingCache) Set(context.Context, string, *domain.Cart) error {
	f.calls++
	return errors.New("connection refused")
}

func (f *failingCache) Delete(context.Context, string) error {
	f.calls++
	return errors.New("connection refused")
}

func TestBreakerCache_OpensAfterFailures(t *testing.T) {
	inner := &failingCache{}
	b := NewBreakerCache(inner, BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Get(ctx, "user-1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Get(ctx, "user-1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, b.Delete(ctx, "user-1"), gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerCache_MissIsNotFailure(t *testing.T) {
	cache, _ := setupTestRedis(t)
	b := NewBreakerCache(cache, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.Get(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
