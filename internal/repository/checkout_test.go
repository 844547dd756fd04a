package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCheckoutRepository(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCheckoutRepository(client, time.Hour)
	ctx := context.Background()

	intent := &domain.CheckoutIntent{
		OrderID:      "order_1",
		Kind:         domain.CheckoutCreate,
		Tenant:       domain.TenantRef{Kind: domain.TenantIndividual, ID: "u1"},
		PrincipalID:  "u1",
		ProductSlug:  "ugraph",
		Plan:         "pro",
		BillingCycle: domain.CycleMonthly,
		Amount:       2500,
		CreatedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveIntent(ctx, intent))

	got, err := repo.GetIntent(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, intent, got)

	missing, err := repo.GetIntent(ctx, "order_2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	mr.FastForward(2 * time.Hour)
	expired, err := repo.GetIntent(ctx, "order_1")
	require.NoError(t, err)
	assert.Nil(t, expired)

	require.NoError(t, repo.Ping(ctx))
}

func TestCheckoutRepositoryCorruptIntent(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCheckoutRepository(client, time.Hour)
	require.NoError(t, mr.Set(checkoutKeyPrefix+"order_bad", "{not json"))

	_, err := repo.GetIntent(context.Background(), "order_bad")
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "confirm:order_1", 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "confirm:order_1", 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))

	other, err := locker.Lock(ctx, "confirm:order_2", 5*time.Second)
	require.NoError(t, err)
	other()

	release()
	again, err := locker.Lock(ctx, "confirm:order_1", 5*time.Second)
	require.NoError(t, err)
	again()
}
