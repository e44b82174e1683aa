// Package poller drives the authoritative snapshot feed: a fixed
// 1-second cadence fetching every active market's two order books via
// REST, replacing the in-memory view wholesale, and emitting a tick.
//
// The poller alone produces a complete (if lower-frequency) tick
// series; the delta stream only adds granularity on top.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyflow/updown-data/internal/api"
	"github.com/polyflow/updown-data/internal/metrics"
	"github.com/polyflow/updown-data/internal/model"
)

// InstrumentSource provides the markets to poll.
type InstrumentSource interface {
	Active(class model.WindowClass) []model.Instrument
}

// BookSink receives fetched snapshots.
type BookSink interface {
	ReplaceSnapshot(token string, bids, asks []model.PriceLevel)
}

// TickSink persists a best-price observation for a market.
type TickSink interface {
	WriteTick(ctx context.Context, slug, source string, force bool) (bool, error)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll cadence (default: 1s)
	Concurrency int           // Max concurrent instruments (default: 20)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		Concurrency: 20,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically refreshes order books via REST.
type Poller struct {
	cfg    Config
	client *api.Client
	source InstrumentSource
	books  BookSink
	ticks  TickSink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *api.Client, source InstrumentSource, books BookSink, ticks TickSink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		client: client,
		source: source,
		books:  books,
		ticks:  ticks,
		logger: logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll refreshes all active markets concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	instruments := p.source.Active("")
	if len(instruments) == 0 {
		p.logger.Debug("no active markets to poll")
		return
	}

	// Semaphore for bounded concurrency across instruments.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var written, errors atomic.Int64

	for _, inst := range instruments {
		wg.Add(1)
		go func(inst model.Instrument) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if errs := p.pollInstrument(inst); errs > 0 {
				errors.Add(errs)
			}

			ok, err := p.ticks.WriteTick(p.ctx, inst.Slug, model.SourceRest, false)
			if err != nil {
				p.logger.Warn("tick write failed", "slug", inst.Slug, "err", err)
			} else if ok {
				written.Add(1)
			}
		}(inst)
	}

	wg.Wait()
	metrics.PollCycles.Inc()

	p.logger.Debug("poll cycle complete",
		"markets", len(instruments),
		"ticks_written", written.Load(),
		"errors", errors.Load(),
		"duration", time.Since(start),
	)
}

// pollInstrument fetches both sides of one market concurrently. A
// failed side is logged and skipped; the other side still lands, and
// the next cycle retries.
func (p *Poller) pollInstrument(inst model.Instrument) int64 {
	var errs atomic.Int64

	g := new(errgroup.Group)
	for _, token := range []string{inst.YesTokenID, inst.NoTokenID} {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
			defer cancel()

			snapshot, err := p.client.FetchBook(ctx, token)
			if err != nil {
				p.logger.Warn("failed to fetch book",
					"slug", inst.Slug,
					"token", token,
					"err", err,
				)
				metrics.PollErrors.Inc()
				errs.Add(1)
				return nil
			}

			p.books.ReplaceSnapshot(token, snapshot.Bids, snapshot.Asks)
			return nil
		})
	}
	g.Wait()

	return errs.Load()
}
