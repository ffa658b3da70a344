package ledgercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"nercollab/internal/annotation"
)

type countingStore struct {
	*annotation.MemoryStore
	gets int
}

func (c *countingStore) GetLedger(ctx context.Context, taskID string) (*annotation.Ledger, error) {
	c.gets++
	return c.MemoryStore.GetLedger(ctx, taskID)
}

func setupTestRedis(t *testing.T) (*RedisStore, *countingStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	backing := &countingStore{MemoryStore: annotation.NewMemoryStore()}
	store, err := NewRedisStore("redis://"+s.Addr(), backing, time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, backing, s
}

func TestNewRedisStore(t *testing.T) {
	store, _, _ := setupTestRedis(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url", annotation.NewMemoryStore(), time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveThenGetServesFromCache(t *testing.T) {
	store, backing, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	ledger := annotation.NewLedger()
	ledger.Submit("alice", []annotation.Span{{Start: 0, End: 5, Label: "PER"}})
	ledger.Submit("bob", []annotation.Span{{Start: 0, End: 5, Label: "PER"}})
	if err := store.SaveLedger(ctx, "task-1", ledger); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	if !s.Exists("ledger:task-1") {
		t.Fatal("expected cached entry after save")
	}

	loaded, err := store.GetLedger(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if backing.gets != 0 {
		t.Fatalf("expected cache hit, backing store read %d times", backing.gets)
	}
	if got := loaded.Annotators(); len(got) != 2 || got[0] != "alice" {
		t.Fatalf("unexpected annotators: %v", got)
	}
}

func TestGetFillsCacheOnMiss(t *testing.T) {
	store, backing, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	ledger := annotation.NewLedger().Submit("carol", nil)
	if err := backing.SaveLedger(ctx, "task-2", ledger); err != nil {
		t.Fatalf("seed backing: %v", err)
	}

	if _, err := store.GetLedger(ctx, "task-2"); err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if _, err := store.GetLedger(ctx, "task-2"); err != nil {
		t.Fatalf("GetLedger (second) failed: %v", err)
	}
	if backing.gets != 1 {
		t.Fatalf("expected one backing read, got %d", backing.gets)
	}
	if ttl := s.TTL("ledger:task-2"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}
}

func TestExpiredEntryFallsBackToBacking(t *testing.T) {
	store, backing, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveLedger(ctx, "task-3", annotation.NewLedger().Submit("dan", nil)); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.GetLedger(ctx, "task-3"); err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if backing.gets != 1 {
		t.Fatalf("expected backing read after expiry, got %d", backing.gets)
	}
}

func TestCorruptEntryIsDiscarded(t *testing.T) {
	store, backing, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	if err := backing.SaveLedger(ctx, "task-4", annotation.NewLedger().Submit("eve", nil)); err != nil {
		t.Fatalf("seed backing: %v", err)
	}
	if err := s.Set("ledger:task-4", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	loaded, err := store.GetLedger(ctx, "task-4")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if !loaded.Has("eve") {
		t.Fatalf("expected backing ledger, got %v", loaded.Annotators())
	}
}

func TestMissingLedgerIsNotCached(t *testing.T) {
	store, _, s := setupTestRedis(t)
	defer store.Close()

	_, err := store.GetLedger(context.Background(), "nope")
	if !errors.Is(err, annotation.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
	if s.Exists("ledger:nope") {
		t.Fatal("missing ledger must not be cached")
	}
}

func TestInvalidate(t *testing.T) {
	store, _, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveLedger(ctx, "task-5", annotation.NewLedger()); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	if err := store.Invalidate(ctx, "task-5"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if s.Exists("ledger:task-5") {
		t.Fatal("entry survived invalidation")
	}
	if err := store.Invalidate(ctx, "never-cached"); err != nil {
		t.Errorf("Invalidate of missing key failed: %v", err)
	}
}

func TestSubmitSpansWritesThroughAndDropsCache(t *testing.T) {
	store, backing, s := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveLedger(ctx, "task-6", annotation.NewLedger().Submit("alice", nil)); err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}
	ledger, err := store.SubmitSpans(ctx, "task-6", "bob", []annotation.Span{{Start: 0, End: 2, Label: "PER"}})
	if err != nil {
		t.Fatalf("SubmitSpans failed: %v", err)
	}
	if got := ledger.Annotators(); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("unexpected annotators: %v", got)
	}
	if s.Exists("ledger:task-6") {
		t.Fatal("expected cached entry to be dropped after submit")
	}

	stored, err := backing.MemoryStore.GetLedger(ctx, "task-6")
	if err != nil {
		t.Fatalf("backing GetLedger failed: %v", err)
	}
	if !stored.Has("bob") {
		t.Fatalf("submission did not reach the backing store: %v", stored.Annotators())
	}

	if _, err := store.SubmitSpans(ctx, "missing", "bob", nil); !errors.Is(err, annotation.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
}
