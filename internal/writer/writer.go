// Package writer persists deduplicated best-price ticks.
//
// The dedup key is the 4-tuple of both sides' best bid/ask. Storage
// growth therefore tracks actual price movement, not poll frequency:
// an unchanged market produces no rows no matter how often it is
// observed.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polyflow/updown-data/internal/book"
	"github.com/polyflow/updown-data/internal/metrics"
	"github.com/polyflow/updown-data/internal/model"
)

// BookSource provides consistent best-price reads for token pairs.
type BookSource interface {
	BestPair(tokenA, tokenB string) (book.Best, book.Best)
}

// InstrumentSource resolves slugs to instruments.
type InstrumentSource interface {
	Lookup(slug string) (model.Instrument, bool)
}

// TickStore persists tick rows.
type TickStore interface {
	InsertTick(ctx context.Context, tick model.Tick) error
}

// priceKey is the process-lifetime dedup 4-tuple for one market.
type priceKey struct {
	yesBid, yesAsk, noBid, noAsk             float64
	hasYesBid, hasYesAsk, hasNoBid, hasNoAsk bool
}

// Writer computes and persists ticks with per-market deduplication.
type Writer struct {
	books       BookSource
	instruments InstrumentSource
	store       TickStore
	logger      *slog.Logger
	now         func() time.Time

	// mu serializes the whole check-write-update sequence so two
	// loops observing the same prices cannot both pass the dedup
	// check.
	mu   sync.Mutex
	last map[string]priceKey
}

// New creates a Writer.
func New(books BookSource, instruments InstrumentSource, store TickStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		books:       books,
		instruments: instruments,
		store:       store,
		logger:      logger,
		now:         time.Now,
		last:        make(map[string]priceKey),
	}
}

// WriteTick observes the market's current best prices and persists a
// tick row unless the observation is empty or duplicates the last
// written one. force bypasses deduplication (used for the initial
// tick of every instrument). Returns whether a row was written.
func (w *Writer) WriteTick(ctx context.Context, slug, source string, force bool) (bool, error) {
	inst, ok := w.instruments.Lookup(slug)
	if !ok {
		return false, nil
	}

	yes, no := w.books.BestPair(inst.YesTokenID, inst.NoTokenID)
	if !yes.HasBid && !yes.HasAsk && !no.HasBid && !no.HasAsk {
		return false, nil
	}

	key := priceKey{
		yesBid: yes.Bid, yesAsk: yes.Ask, noBid: no.Bid, noAsk: no.Ask,
		hasYesBid: yes.HasBid, hasYesAsk: yes.HasAsk, hasNoBid: no.HasBid, hasNoAsk: no.HasAsk,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, seen := w.last[slug]; seen && !force && prev == key {
		metrics.TicksDeduped.Inc()
		return false, nil
	}

	now := w.now().UTC()
	tick := model.Tick{
		Slug:           slug,
		Timestamp:      now,
		EpochMS:        now.UnixMilli(),
		SecondsElapsed: now.Sub(time.Unix(inst.OpenTS, 0)).Seconds(),
		Source:         source,
	}
	if yes.HasBid {
		tick.YesBid = ptr(yes.Bid)
	}
	if yes.HasAsk {
		tick.YesAsk = ptr(yes.Ask)
	}
	if no.HasBid {
		tick.NoBid = ptr(no.Bid)
	}
	if no.HasAsk {
		tick.NoAsk = ptr(no.Ask)
	}
	if yes.HasBid && yes.HasAsk {
		tick.YesMid = ptr(model.Mid(yes.Bid, yes.Ask))
	}
	if no.HasBid && no.HasAsk {
		tick.NoMid = ptr(model.Mid(no.Bid, no.Ask))
	}

	if err := w.store.InsertTick(ctx, tick); err != nil {
		// Dedup state is intentionally left untouched: the next
		// observation with the same prices retries the write instead
		// of being silently dropped.
		metrics.TickWriteErrors.Inc()
		w.logger.Error("tick write failed", "slug", slug, "source", source, "err", err)
		return false, err
	}

	w.last[slug] = key
	metrics.TicksWritten.WithLabelValues(source).Inc()
	return true, nil
}

// Forget drops the dedup state for an expired market.
func (w *Writer) Forget(slug string) {
	w.mu.Lock()
	delete(w.last, slug)
	w.mu.Unlock()
}

func ptr(v float64) *float64 {
	return &v
}
