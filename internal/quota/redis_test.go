package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_KeysAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, 100, "2024-01-02", 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Commit(ctx, 100, "2024-01-02"))

	assert.Equal(t, "2024-01-02", mr.HGet("quickhelp:usage:100", "date"))
	assert.Equal(t, "1", mr.HGet("quickhelp:usage:100", "count"))
	assert.Equal(t, "0", mr.HGet("quickhelp:usage:100", "reserved"))
	assert.Equal(t, usageTTL, mr.TTL("quickhelp:usage:100"))

	require.NoError(t, store.AddPremium(ctx, 100))
	members, err := mr.Members("quickhelp:premium")
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, members)

	// Idle usage records expire; premium membership does not
	mr.FastForward(usageTTL + time.Second)
	assert.False(t, mr.Exists("quickhelp:usage:100"))
	premium, err := store.IsPremium(ctx, 100)
	require.NoError(t, err)
	assert.True(t, premium)
}

func TestRedisStore_CommitWithoutReservation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Commit(ctx, 1, "2024-01-02"))
	require.NoError(t, store.Rollback(ctx, 1, "2024-01-02"))

	rec, err := store.Usage(ctx, 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, UsageRecord{Date: "2024-01-02"}, rec)
}

func TestRedisStore_StaleReservationsExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	store := NewRedisStore(client, WithStaleReservationAfter(10*time.Minute))
	store.now = func() time.Time { return now }
	ctx := context.Background()

	// A process that dies after Reserve never commits or rolls back
	ok, err := store.Reserve(ctx, 5, "2024-01-02", 2)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Reserve(ctx, 5, "2024-01-02", 2)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(5 * time.Minute)
	ok, err = store.Reserve(ctx, 5, "2024-01-02", 2)
	require.NoError(t, err)
	assert.False(t, ok, "recent reservations must still hold the slots")

	now = now.Add(11 * time.Minute)
	ok, err = store.Reserve(ctx, 5, "2024-01-02", 2)
	require.NoError(t, err)
	assert.True(t, ok, "stale reservations should be dropped")

	rec, err := store.Usage(ctx, 5, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.Equal(t, 1, rec.Reserved)
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client)
	mr.Close()

	_, err := store.Reserve(context.Background(), 1, "2024-01-02", 3)
	assert.Error(t, err)

	tr, err := NewTracker(store, 3)
	require.NoError(t, err)
	_, err = tr.Check(context.Background(), 1)
	assert.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
