package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text))}, nil
}

func TestEmbeddingCacheServesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewEmbeddingCache(inner, 8, time.Minute)

	first, err := c.Embed(context.Background(), "món chay")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := c.Embed(context.Background(), "  món chay ")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", inner.calls)
	}
	if len(first) != 1 || first[0] != second[0] {
		t.Fatalf("cached vector mismatch: %v vs %v", first, second)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestEmbeddingCacheIsolatesCallerMutations(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewEmbeddingCache(inner, 8, time.Minute)
	ctx := context.Background()

	first, err := c.Embed(ctx, "phở")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want := first[0]
	first[0] = -1

	second, err := c.Embed(ctx, "phở")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if second[0] != want {
		t.Fatalf("cache entry corrupted by caller: got %v, want %v", second[0], want)
	}
	second[0] = -2

	third, err := c.Embed(ctx, "phở")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if third[0] != want || inner.calls != 1 {
		t.Fatalf("expected untouched cached vector from one upstream call, got %v after %d calls", third[0], inner.calls)
	}
}

func TestEmbeddingCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("model offline")}
	c := NewEmbeddingCache(inner, 8, time.Minute)

	if _, err := c.Embed(context.Background(), "phở"); err == nil {
		t.Fatalf("expected error")
	}
	if c.Len() != 0 {
		t.Fatalf("failed embedding must not be cached")
	}
	inner.err = nil
	if _, err := c.Embed(context.Background(), "phở"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected retry to reach upstream, calls=%d", inner.calls)
	}
}

func TestEmbeddingCacheEvictsBeyondCapacity(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewEmbeddingCache(inner, 2, time.Minute)
	for _, q := range []string{"a", "bb", "ccc"} {
		if _, err := c.Embed(context.Background(), q); err != nil {
			t.Fatalf("Embed(%q) error = %v", q, err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 cached entries, got %d", c.Len())
	}
	if _, err := c.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 4 {
		t.Fatalf("expected evicted entry to be re-embedded, calls=%d", inner.calls)
	}
}
