package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/webberzone/gluelink/internal/domain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewCacheWithClient(client, logger), mr
}

func testSubscriber() *domain.Subscriber {
	return &domain.Subscriber{
		ID:        7,
		Email:     "a@b.com",
		FirstName: "A",
		LastName:  "B",
		Fields:    map[string]string{"plan": "pro"},
		Tags:      []int64{301},
		Forms:     []int64{101, 102},
		Status:    domain.StatusActive,
	}
}

func TestCache_SubscriberRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if got := cache.GetSubscriberByID(ctx, 7); got != nil {
		t.Fatalf("cold cache returned %+v", got)
	}

	cache.SetSubscriber(ctx, testSubscriber())

	byID := cache.GetSubscriberByID(ctx, 7)
	if byID == nil {
		t.Fatal("miss by id after set")
	}
	if byID.Email != "a@b.com" || byID.Fields["plan"] != "pro" {
		t.Errorf("cached record = %+v", byID)
	}

	byEmail := cache.GetSubscriberByEmail(ctx, "a@b.com")
	if byEmail == nil || byEmail.ID != 7 {
		t.Errorf("miss by email after set: %+v", byEmail)
	}
}

func TestCache_InvalidateSubscriber(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.SetSubscriber(ctx, testSubscriber())
	cache.SetCounts(ctx, map[string]int{"active": 3})

	// An email change invalidates both the old and new address keys.
	cache.InvalidateSubscriber(ctx, 7, "a@b.com", "new@b.com")

	if cache.GetSubscriberByID(ctx, 7) != nil {
		t.Error("id entry survived invalidation")
	}
	if cache.GetSubscriberByEmail(ctx, "a@b.com") != nil {
		t.Error("email entry survived invalidation")
	}
	if cache.GetCounts(ctx) != nil {
		t.Error("counts survived subscriber invalidation")
	}
}

func TestCache_CountsExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.SetCounts(ctx, map[string]int{"active": 3, "inactive": 1})

	counts := cache.GetCounts(ctx)
	if counts == nil || counts["active"] != 3 || counts["inactive"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	mr.FastForward(countsTTL + time.Second)
	if cache.GetCounts(ctx) != nil {
		t.Error("counts survived past their TTL")
	}
}

func TestCache_NilCacheAlwaysMisses(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	// Every method must be safe on a nil receiver.
	cache.SetSubscriber(ctx, testSubscriber())
	cache.InvalidateSubscriber(ctx, 7, "a@b.com")
	cache.SetCounts(ctx, map[string]int{"active": 1})

	if cache.GetSubscriberByID(ctx, 7) != nil {
		t.Error("nil cache returned a record by id")
	}
	if cache.GetSubscriberByEmail(ctx, "a@b.com") != nil {
		t.Error("nil cache returned a record by email")
	}
	if cache.GetCounts(ctx) != nil {
		t.Error("nil cache returned counts")
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Close on nil cache = %v", err)
	}
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set("gluelink:subscriber:id:7", "{not json")
	if got := cache.GetSubscriberByID(ctx, 7); got != nil {
		t.Errorf("corrupt entry returned %+v", got)
	}
}
