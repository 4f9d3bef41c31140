package stats

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestCacheEmptyMiss(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss on empty cache")
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("ttl: got %v, want %v", c.TTL(), DefaultTTL)
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := NewCache(WithClock(clk))

	want := AdminStats{TotalUsers: 3, TotalDoctors: 1}
	c.Put(want)
	clk.Advance(DefaultTTL - time.Second)

	got, ok := c.Get()
	if !ok {
		t.Fatal("expected hit")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCacheExpires(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := NewCache(WithClock(clk), WithTTL(time.Minute))

	c.Put(AdminStats{TotalUsers: 1})
	clk.Advance(time.Minute)

	if _, ok := c.Get(); ok {
		t.Fatal("expected miss once ttl has elapsed")
	}
}

func TestCachePutRestartsTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := NewCache(WithClock(clk), WithTTL(time.Minute))

	c.Put(AdminStats{TotalUsers: 1})
	clk.Advance(50 * time.Second)
	c.Put(AdminStats{TotalUsers: 2})
	clk.Advance(50 * time.Second)

	got, ok := c.Get()
	if !ok || got.TotalUsers != 2 {
		t.Fatalf("expected fresh overwrite, got %+v ok=%v", got, ok)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache()
	c.Put(AdminStats{TotalUsers: 1})
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewCache(WithTTL(0))
	if c.TTL() != DefaultTTL {
		t.Errorf("ttl: got %v", c.TTL())
	}
}

func TestCacheStats(t *testing.T) {
	c := NewCache()
	c.Get()
	c.Put(AdminStats{})
	c.Get()
	c.Get()

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("got %+v", s)
	}
}
