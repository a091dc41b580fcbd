package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/store"
)

func sampleRecs() []core.Recommendation {
	return []core.Recommendation{
		{TrackID: 11, Rank: 1, Score: 0.9, Source: core.SourceRanked},
		{TrackID: 22, Rank: 2, Score: 0.5, Source: core.SourcePopular},
	}
}

func TestMemoryPutGet(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, 1); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(ctx, 1, sampleRecs())
	got, ok := c.Get(ctx, 1)
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, sampleRecs()) {
		t.Fatalf("Get = %v, want %v", got, sampleRecs())
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory(30 * time.Millisecond)
	ctx := context.Background()

	c.Put(ctx, 1, sampleRecs())
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get(ctx, 1); ok {
		t.Fatal("expected logical expiry after TTL")
	}
}

func TestMemoryOverwrite(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	c.Put(ctx, 1, sampleRecs())
	updated := []core.Recommendation{{TrackID: 33, Rank: 1, Score: 1.0, Source: core.SourceSimilarOnline}}
	c.Put(ctx, 1, updated)

	got, ok := c.Get(ctx, 1)
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, updated) {
		t.Fatalf("Get = %v, want overwritten value %v", got, updated)
	}
}

func TestStoreCacheRoundtrip(t *testing.T) {
	ms := store.NewMemoryStore()
	defer ms.Close()
	c := &StoreCache{Store: ms, TTL: 60}
	ctx := context.Background()

	if _, ok := c.Get(ctx, 5); ok {
		t.Fatal("expected miss")
	}
	c.Put(ctx, 5, sampleRecs())
	got, ok := c.Get(ctx, 5)
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, sampleRecs()) {
		t.Fatalf("Get = %v, want %v", got, sampleRecs())
	}
}
