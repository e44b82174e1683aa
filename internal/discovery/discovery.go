// Package discovery tracks the market lifecycle for one window class:
// finding the current window's market as it lists, seeding its books,
// and retiring it once its close time plus the grace period passes.
//
// The first window observed after startup is deliberately skipped; its
// series would begin mid-window and pollute interval comparisons.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polyflow/updown-data/internal/api"
	"github.com/polyflow/updown-data/internal/market"
	"github.com/polyflow/updown-data/internal/metrics"
	"github.com/polyflow/updown-data/internal/model"
)

// Resolver looks up markets and seeds their books.
type Resolver interface {
	ResolveMarket(ctx context.Context, slug string) (*api.TokenPair, error)
	FetchBook(ctx context.Context, tokenID string) (*api.BookSnapshot, error)
}

// InstrumentRegistry is the shared in-memory view of active markets.
type InstrumentRegistry interface {
	Register(inst model.Instrument) bool
	Lookup(slug string) (model.Instrument, bool)
	Active(class model.WindowClass) []model.Instrument
	Expire(slug string) (model.Instrument, bool)
	Len() int
}

// BookSink holds per-token order book state.
type BookSink interface {
	ReplaceSnapshot(token string, bids, asks []model.PriceLevel)
	Forget(token string)
}

// TickSink persists best-price observations.
type TickSink interface {
	WriteTick(ctx context.Context, slug, source string, force bool) (bool, error)
	Forget(slug string)
}

// InstrumentStore persists market rows.
type InstrumentStore interface {
	InsertInstrument(ctx context.Context, inst model.Instrument) error
	MarkResolved(ctx context.Context, slug string) error
}

// Config holds discovery configuration for one window class.
type Config struct {
	Class      model.WindowClass
	SlugPrefix string        // Slug prefix (default: "btc-updown")
	Interval   time.Duration // Discovery cadence (default: 3s)
	Grace      time.Duration // Post-close retention (default: 30s)
	Timeout    time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults for a window class.
func DefaultConfig(class model.WindowClass) Config {
	return Config{
		Class:      class,
		SlugPrefix: "btc-updown",
		Interval:   3 * time.Second,
		Grace:      30 * time.Second,
		Timeout:    10 * time.Second,
	}
}

// Discovery runs the lifecycle loop for one window class.
type Discovery struct {
	cfg      Config
	client   Resolver
	registry InstrumentRegistry
	books    BookSink
	ticks    TickSink
	store    InstrumentStore
	logger   *slog.Logger

	// startupSlug is the window already in progress when the process
	// started. It is never collected.
	startupSlug string

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Discovery for one window class. The window current at
// construction time is recorded and excluded from collection.
func New(cfg Config, client Resolver, registry InstrumentRegistry, books BookSink, ticks TickSink, store InstrumentStore, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("class", string(cfg.Class))

	d := &Discovery{
		cfg:      cfg,
		client:   client,
		registry: registry,
		books:    books,
		ticks:    ticks,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	d.startupSlug, _ = market.Slug(cfg.SlugPrefix, cfg.Class, d.now())
	return d
}

// Start begins the discovery loop.
func (d *Discovery) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.run()

	d.logger.Info("discovery started",
		"interval", d.cfg.Interval,
		"grace", d.cfg.Grace,
		"startup_slug", d.startupSlug,
	)

	return nil
}

// Stop gracefully shuts down the discovery loop.
func (d *Discovery) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("discovery stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Discovery) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.cycle()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.cycle()
		}
	}
}

// cycle performs one discovery pass: pick up the current window's
// market if it has listed, then retire anything past grace.
func (d *Discovery) cycle() {
	d.discoverCurrent()
	d.expireClosed()
}

func (d *Discovery) discoverCurrent() {
	slug, start := market.Slug(d.cfg.SlugPrefix, d.cfg.Class, d.now())
	if slug == d.startupSlug {
		return
	}
	if _, ok := d.registry.Lookup(slug); ok {
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	defer cancel()

	pair, err := d.client.ResolveMarket(ctx, slug)
	if err != nil {
		d.logger.Warn("market lookup failed", "slug", slug, "err", err)
		return
	}
	if pair == nil {
		// Not listed yet. The next cycle retries.
		d.logger.Debug("market not listed", "slug", slug)
		return
	}

	inst := model.Instrument{
		Slug:        slug,
		YesTokenID:  pair.YesTokenID,
		NoTokenID:   pair.NoTokenID,
		OpenTS:      start,
		CloseTS:     start + int64(d.cfg.Class.Interval().Seconds()),
		WindowClass: d.cfg.Class,
	}

	if !d.registry.Register(inst) {
		return
	}
	metrics.InstrumentsDiscovered.WithLabelValues(string(d.cfg.Class)).Inc()
	metrics.ActiveInstruments.Set(float64(d.registry.Len()))

	if err := d.store.InsertInstrument(ctx, inst); err != nil {
		d.logger.Warn("failed to persist market", "slug", slug, "err", err)
	}

	d.seedBooks(ctx, inst)

	// Force the opening tick so every market's series starts with a
	// row even if the books are quiet.
	if _, err := d.ticks.WriteTick(ctx, slug, model.SourceRest, true); err != nil {
		d.logger.Warn("opening tick failed", "slug", slug, "err", err)
	}

	d.logger.Info("market discovered",
		"slug", slug,
		"open", inst.OpenTS,
		"close", inst.CloseTS,
	)
}

// seedBooks fetches both sides' books immediately on registration
// instead of waiting for the first poll cycle.
func (d *Discovery) seedBooks(ctx context.Context, inst model.Instrument) {
	for _, token := range []string{inst.YesTokenID, inst.NoTokenID} {
		snapshot, err := d.client.FetchBook(ctx, token)
		if err != nil {
			d.logger.Warn("failed to seed book", "slug", inst.Slug, "token", token, "err", err)
			continue
		}
		d.books.ReplaceSnapshot(token, snapshot.Bids, snapshot.Asks)
	}
}

// expireClosed retires markets strictly past close plus grace. The
// window stays collectable through the grace period so resolution
// prints land in the series.
func (d *Discovery) expireClosed() {
	nowUnix := d.now().Unix()
	grace := int64(d.cfg.Grace.Seconds())

	for _, inst := range d.registry.Active(d.cfg.Class) {
		if nowUnix <= inst.CloseTS+grace {
			continue
		}

		removed, ok := d.registry.Expire(inst.Slug)
		if !ok {
			continue
		}

		d.books.Forget(removed.YesTokenID)
		d.books.Forget(removed.NoTokenID)
		d.ticks.Forget(removed.Slug)

		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
		if err := d.store.MarkResolved(ctx, removed.Slug); err != nil {
			d.logger.Warn("failed to mark resolved", "slug", removed.Slug, "err", err)
		}
		cancel()

		metrics.InstrumentsExpired.WithLabelValues(string(d.cfg.Class)).Inc()
		metrics.ActiveInstruments.Set(float64(d.registry.Len()))

		d.logger.Info("market expired", "slug", removed.Slug, "close", removed.CloseTS)
	}
}
