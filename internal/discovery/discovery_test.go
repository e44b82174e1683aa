package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/polyflow/updown-data/internal/api"
	"github.com/polyflow/updown-data/internal/book"
	"github.com/polyflow/updown-data/internal/market"
	"github.com/polyflow/updown-data/internal/model"
)

type fakeResolver struct {
	mu       sync.Mutex
	listed   map[string]*api.TokenPair
	failWith error
	resolves int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{listed: make(map[string]*api.TokenPair)}
}

func (f *fakeResolver) list(slug, yes, no string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed[slug] = &api.TokenPair{YesTokenID: yes, NoTokenID: no}
}

func (f *fakeResolver) ResolveMarket(ctx context.Context, slug string) (*api.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.listed[slug], nil
}

func (f *fakeResolver) FetchBook(ctx context.Context, tokenID string) (*api.BookSnapshot, error) {
	return &api.BookSnapshot{
		Bids: []model.PriceLevel{{Price: 0.50, Size: 10}},
		Asks: []model.PriceLevel{{Price: 0.52, Size: 8}},
	}, nil
}

func (f *fakeResolver) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves
}

type tickCall struct {
	slug, source string
	force        bool
}

type fakeTicks struct {
	mu        sync.Mutex
	calls     []tickCall
	forgotten []string
}

func (f *fakeTicks) WriteTick(ctx context.Context, slug, source string, force bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tickCall{slug: slug, source: source, force: force})
	return true, nil
}

func (f *fakeTicks) Forget(slug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, slug)
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []string
	resolved []string
}

func (f *fakeStore) InsertInstrument(ctx context.Context, inst model.Instrument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, inst.Slug)
	return nil
}

func (f *fakeStore) MarkResolved(ctx context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, slug)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Window boundaries for the 5m class around the test epoch.
const (
	startupWindow = int64(1699999800)
	firstWindow   = int64(1700000100)
)

type fixture struct {
	d        *Discovery
	resolver *fakeResolver
	registry *market.Registry
	books    *book.Store
	ticks    *fakeTicks
	store    *fakeStore
	clock    *time.Time
}

// newFixture builds a Discovery constructed mid-startupWindow, with a
// settable clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	resolver := newFakeResolver()
	registry := market.NewRegistry()
	books := book.NewStore()
	ticks := &fakeTicks{}
	store := &fakeStore{}

	clock := time.Unix(startupWindow+42, 0)

	d := New(DefaultConfig(model.Window5m), resolver, registry, books, ticks, store, testLogger())
	d.now = func() time.Time { return clock }
	d.ctx, d.cancel = context.WithCancel(context.Background())
	t.Cleanup(d.cancel)

	// Reinstall startupSlug from the fake clock rather than the wall
	// clock New saw.
	d.startupSlug, _ = market.Slug(d.cfg.SlugPrefix, d.cfg.Class, clock)

	return &fixture{d: d, resolver: resolver, registry: registry, books: books, ticks: ticks, store: store, clock: &clock}
}

func (f *fixture) setClock(unix int64) {
	*f.clock = time.Unix(unix, 0)
}

func TestStartupWindowSkipped(t *testing.T) {
	f := newFixture(t)
	f.resolver.list("btc-updown-5m-1699999800", "y", "n")

	f.d.cycle()

	if f.resolver.resolveCount() != 0 {
		t.Error("startup window must never be resolved")
	}
	if f.registry.Len() != 0 {
		t.Error("startup window must not be registered")
	}
}

func TestDiscoverNextWindow(t *testing.T) {
	f := newFixture(t)
	slug := "btc-updown-5m-1700000100"
	f.resolver.list(slug, "yes-tok", "no-tok")

	f.setClock(firstWindow + 1)
	f.d.cycle()

	inst, ok := f.registry.Lookup(slug)
	if !ok {
		t.Fatal("market not registered")
	}
	if inst.OpenTS != firstWindow || inst.CloseTS != firstWindow+300 {
		t.Errorf("window bounds = [%d, %d]", inst.OpenTS, inst.CloseTS)
	}
	if inst.YesTokenID != "yes-tok" || inst.NoTokenID != "no-tok" {
		t.Errorf("tokens = %q, %q", inst.YesTokenID, inst.NoTokenID)
	}

	if len(f.store.inserted) != 1 || f.store.inserted[0] != slug {
		t.Errorf("inserted = %v", f.store.inserted)
	}

	// Books seeded for both tokens.
	yes, no := f.books.BestPair("yes-tok", "no-tok")
	if !yes.HasBid || !no.HasAsk {
		t.Error("books not seeded on discovery")
	}

	// Opening tick is forced.
	if len(f.ticks.calls) != 1 {
		t.Fatalf("ticks = %v", f.ticks.calls)
	}
	if got := f.ticks.calls[0]; got.slug != slug || got.source != model.SourceRest || !got.force {
		t.Errorf("opening tick = %+v", got)
	}
}

func TestDiscoverIdempotentAcrossCycles(t *testing.T) {
	f := newFixture(t)
	f.resolver.list("btc-updown-5m-1700000100", "y", "n")

	f.setClock(firstWindow + 1)
	f.d.cycle()
	f.d.cycle()
	f.d.cycle()

	if f.resolver.resolveCount() != 1 {
		t.Errorf("expected 1 resolve, got %d", f.resolver.resolveCount())
	}
	if len(f.store.inserted) != 1 {
		t.Errorf("expected 1 insert, got %d", len(f.store.inserted))
	}
}

func TestUnlistedMarketRetried(t *testing.T) {
	f := newFixture(t)
	f.setClock(firstWindow + 1)

	f.d.cycle()
	if f.registry.Len() != 0 {
		t.Fatal("unlisted market must not register")
	}

	f.resolver.list("btc-updown-5m-1700000100", "y", "n")
	f.d.cycle()

	if f.registry.Len() != 1 {
		t.Error("market should register once listed")
	}
	if f.resolver.resolveCount() != 2 {
		t.Errorf("expected 2 resolves, got %d", f.resolver.resolveCount())
	}
}

func TestLookupFailureRetried(t *testing.T) {
	f := newFixture(t)
	f.resolver.failWith = errors.New("gamma down")
	f.setClock(firstWindow + 1)

	f.d.cycle()
	if f.registry.Len() != 0 {
		t.Fatal("failed lookup must not register")
	}

	f.resolver.failWith = nil
	f.resolver.list("btc-updown-5m-1700000100", "y", "n")
	f.d.cycle()

	if f.registry.Len() != 1 {
		t.Error("market should register after lookup recovers")
	}
}

func TestExpiryHonorsGrace(t *testing.T) {
	f := newFixture(t)
	slug := "btc-updown-5m-1700000100"
	f.resolver.list(slug, "yes-tok", "no-tok")

	f.setClock(firstWindow + 1)
	f.d.cycle()

	// At close+29 the market is inside grace and stays active.
	f.setClock(firstWindow + 300 + 29)
	f.d.cycle()
	if _, ok := f.registry.Lookup(slug); !ok {
		t.Fatal("market expired before grace elapsed")
	}

	// Exactly close+30 is still within grace; strictly past it is not.
	f.setClock(firstWindow + 300 + 30)
	f.d.cycle()
	if _, ok := f.registry.Lookup(slug); !ok {
		t.Fatal("market expired at the grace boundary")
	}

	f.setClock(firstWindow + 300 + 31)
	f.d.cycle()
	if _, ok := f.registry.Lookup(slug); ok {
		t.Fatal("market should be expired past grace")
	}

	if len(f.store.resolved) != 1 || f.store.resolved[0] != slug {
		t.Errorf("resolved = %v", f.store.resolved)
	}
	if len(f.ticks.forgotten) != 1 || f.ticks.forgotten[0] != slug {
		t.Errorf("dedup state not cleared: %v", f.ticks.forgotten)
	}

	// Books released.
	yes, no := f.books.BestPair("yes-tok", "no-tok")
	if yes.HasBid || no.HasBid {
		t.Error("books should be forgotten on expiry")
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.d.cancel()

	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
