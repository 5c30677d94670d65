package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAllow_UnderLimit(t *testing.T) {
	t.Parallel()

	l := New(5, time.Minute)
	for i := 0; i < 5; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected, want first 5 allowed", i+1)
		}
	}
}

func TestAllow_RejectsAtLimit(t *testing.T) {
	t.Parallel()

	l := New(5, time.Minute)
	for i := 0; i < 5; i++ {
		l.Allow("1.2.3.4")
	}
	if l.Allow("1.2.3.4") {
		t.Error("sixth request allowed, want rejection")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(2, time.Minute)
	l.Allow("a")
	l.Allow("a")
	if l.Allow("a") {
		t.Error("key a should be exhausted")
	}
	if !l.Allow("b") {
		t.Error("key b should be unaffected by key a")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	t.Parallel()

	l := New(2, time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	if !l.Allow("k") || !l.Allow("k") {
		t.Fatal("first two requests should be allowed")
	}
	if l.Allow("k") {
		t.Fatal("third request in window should be rejected")
	}

	// just inside the window: the first event has not yet aged out
	current = current.Add(time.Minute - time.Second)
	if l.Allow("k") {
		t.Error("request at window edge should still be rejected")
	}

	// past the window: both original events aged out
	current = current.Add(2 * time.Second)
	if !l.Allow("k") {
		t.Error("request after window should be allowed again")
	}
}

func TestAllow_DefaultsApplied(t *testing.T) {
	t.Parallel()

	l := New(0, 0)
	if l.limit != DefaultLimit {
		t.Errorf("limit = %d, want %d", l.limit, DefaultLimit)
	}
	if l.window != DefaultWindow {
		t.Errorf("window = %v, want %v", l.window, DefaultWindow)
	}
}

func TestAllow_CleanupEvictsStaleKeys(t *testing.T) {
	t.Parallel()

	l := New(5, time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	// populate past the cleanup threshold
	for i := 0; i < cleanupThreshold+1; i++ {
		l.Allow(fmt.Sprintf("key-%d", i))
	}

	// age everything out, then trip the sweep with fresh keys
	current = current.Add(2 * time.Minute)
	for i := 0; i < cleanupThreshold+2; i++ {
		l.Allow(fmt.Sprintf("fresh-%d", i))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.seen {
		if len(key) > 4 && key[:4] == "key-" {
			t.Fatalf("stale key %s survived cleanup", key)
		}
	}
}

func TestAllow_Concurrent(t *testing.T) {
	t.Parallel()

	l := New(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
