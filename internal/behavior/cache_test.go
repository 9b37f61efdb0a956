package behavior

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nugget/daybreak/internal/metrics"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	lists  int
}

func (f *fakeStore) List(_ context.Context, namespace string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	if namespace != Namespace {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) SetMany(_ context.Context, _ string, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.values == nil {
		f.values = map[string]string{}
	}
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}

func (f *fakeStore) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
}

func (f *fakeStore) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(store *fakeStore, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	c := NewCache(store, "anthropic/claude-3-haiku", ttl, nil)
	c.now = clock.now
	return c, clock
}

func TestCache_ServesWithinTTL(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "formal"}}
	c, clock := newTestCache(store, time.Minute)
	ctx := context.Background()

	if got := c.Get(ctx, false).Tone; got != ToneFormal {
		t.Fatalf("Tone = %q, want formal", got)
	}

	store.set(KeyTone, "casual")
	clock.advance(30 * time.Second)

	if got := c.Get(ctx, false).Tone; got != ToneFormal {
		t.Errorf("Tone within TTL = %q, want cached formal", got)
	}
	if n := store.listCount(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}
}

func TestCache_ReloadsAfterExpiry(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "formal"}}
	c, clock := newTestCache(store, time.Minute)
	ctx := context.Background()

	c.Get(ctx, false)
	store.set(KeyTone, "casual")
	clock.advance(time.Minute)

	if got := c.Get(ctx, false).Tone; got != ToneCasual {
		t.Errorf("Tone after expiry = %q, want casual", got)
	}
}

func TestCache_BypassReadsStore(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyHumor: "none"}}
	c, _ := newTestCache(store, time.Hour)
	ctx := context.Background()

	c.Get(ctx, false)
	store.set(KeyHumor, "playful")

	if got := c.Get(ctx, true).Humor; got != HumorPlayful {
		t.Errorf("bypass Humor = %q, want playful", got)
	}
	// The bypass read refreshed the slot.
	if got := c.Get(ctx, false).Humor; got != HumorPlayful {
		t.Errorf("cached Humor after bypass = %q, want playful", got)
	}
}

func TestCache_Invalidate(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyVerbosity: "low"}}
	c, _ := newTestCache(store, time.Hour)
	ctx := context.Background()

	c.Get(ctx, false)
	store.set(KeyVerbosity, "high")
	c.Invalidate()

	if got := c.Get(ctx, false).Verbosity; got != VerbosityHigh {
		t.Errorf("Verbosity after invalidate = %q, want high", got)
	}
}

func TestCache_LoadErrorWithoutCopyUsesDefaults(t *testing.T) {
	store := &fakeStore{err: errors.New("disk on fire")}
	c, _ := newTestCache(store, time.Minute)

	got := c.Get(context.Background(), false)
	if got.Model != "anthropic/claude-3-haiku" || got.MaxTokens != DefaultMaxTokens {
		t.Errorf("Get on failing store = %+v, want defaults", got)
	}
	if c.slot.Load() != nil {
		t.Error("defaults must not be stored in the slot")
	}
}

func TestCache_LoadErrorServesStale(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "formal"}}
	c, clock := newTestCache(store, time.Minute)
	ctx := context.Background()

	c.Get(ctx, false)
	clock.advance(2 * time.Minute)
	store.mu.Lock()
	store.err = errors.New("locked")
	store.mu.Unlock()

	if got := c.Get(ctx, false).Tone; got != ToneFormal {
		t.Errorf("Tone on reload failure = %q, want stale formal", got)
	}
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	store := &fakeStore{}
	c, _ := newTestCache(store, time.Minute)
	c.SetMetrics(m)
	ctx := context.Background()

	c.Get(ctx, false)
	c.Get(ctx, false)
	c.Get(ctx, false)

	if n, err := testutil.GatherAndCount(reg, "daybreak_settings_cache_lookups_total"); err != nil || n != 2 {
		t.Errorf("series = %d (err %v), want 2 (hit and miss)", n, err)
	}
}

func TestUpdater_InvalidatesAfterWrite(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "casual"}}
	c, _ := newTestCache(store, time.Hour)
	u := NewUpdater(store, c)
	ctx := context.Background()

	c.Get(ctx, false)

	if err := u.Apply(ctx, map[string]any{KeyTone: "formal"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := c.Get(ctx, false).Tone; got != ToneFormal {
		t.Errorf("Tone after update = %q, want formal", got)
	}
}

func TestUpdater_RejectsUnknownKey(t *testing.T) {
	store := &fakeStore{}
	c, _ := newTestCache(store, time.Hour)
	u := NewUpdater(store, c)

	if err := u.Apply(context.Background(), map[string]any{"bogus": "x"}); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if len(store.values) != 0 {
		t.Errorf("store written despite error: %v", store.values)
	}
}

func TestUpdater_WriteFailureKeepsCache(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "casual"}}
	c, _ := newTestCache(store, time.Hour)
	u := NewUpdater(store, c)
	ctx := context.Background()

	c.Get(ctx, false)
	store.mu.Lock()
	store.err = errors.New("read-only")
	store.mu.Unlock()

	if err := u.Apply(ctx, map[string]any{KeyTone: "formal"}); err == nil {
		t.Fatal("expected write error")
	}
	if c.slot.Load() == nil {
		t.Error("cache invalidated after failed write")
	}
}

// pausingStore reads from the wrapped store, then holds the result
// until released.
type pausingStore struct {
	*fakeStore
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	values, err := p.fakeStore.List(ctx, namespace)
	p.read <- struct{}{}
	<-p.release
	return values, err
}

func TestCache_InvalidateDiscardsInFlightReload(t *testing.T) {
	store := &fakeStore{values: map[string]string{KeyTone: "casual"}}
	paused := &pausingStore{
		fakeStore: store,
		read:      make(chan struct{}),
		release:   make(chan struct{}),
	}
	c := NewCache(paused, "anthropic/claude-3-haiku", time.Hour, nil)
	u := NewUpdater(store, c)
	ctx := context.Background()

	done := make(chan Settings)
	go func() { done <- c.Get(ctx, false) }()
	<-paused.read

	if err := u.Apply(ctx, map[string]any{KeyTone: "formal"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	close(paused.release)

	if got := (<-done).Tone; got != ToneCasual {
		t.Errorf("in-flight Get Tone = %q, want the casual it read", got)
	}

	go func() {
		for range paused.read {
		}
	}()
	if got := c.Get(ctx, false).Tone; got != ToneFormal {
		t.Errorf("Tone after committed update = %q, want formal", got)
	}
	close(paused.read)
}
