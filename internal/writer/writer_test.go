package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polyflow/updown-data/internal/book"
	"github.com/polyflow/updown-data/internal/market"
	"github.com/polyflow/updown-data/internal/model"
)

// fakeTickStore records inserted ticks and can fail on demand.
type fakeTickStore struct {
	mu    sync.Mutex
	ticks []model.Tick
	fail  bool
}

func (f *fakeTickStore) InsertTick(ctx context.Context, tick model.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeTickStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func (f *fakeTickStore) lastTick() model.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks[len(f.ticks)-1]
}

func setup(t *testing.T) (*Writer, *book.Store, *fakeTickStore) {
	t.Helper()

	registry := market.NewRegistry()
	registry.Register(model.Instrument{
		Slug:        "m1",
		YesTokenID:  "yes-tok",
		NoTokenID:   "no-tok",
		OpenTS:      1000,
		CloseTS:     1300,
		WindowClass: model.Window5m,
	})

	books := book.NewStore()
	store := &fakeTickStore{}
	w := New(books, registry, store, nil)
	w.now = func() time.Time { return time.Unix(1010, 0) }
	return w, books, store
}

func snap(books *book.Store, token string, bid, ask float64) {
	books.ReplaceSnapshot(token,
		[]model.PriceLevel{{Price: bid, Size: 10}},
		[]model.PriceLevel{{Price: ask, Size: 10}},
	)
}

func TestWriteTickEmptyBooks(t *testing.T) {
	w, _, store := setup(t)

	written, err := w.WriteTick(context.Background(), "m1", model.SourceRest, false)
	if err != nil {
		t.Fatal(err)
	}
	if written || store.count() != 0 {
		t.Error("tick written with all four prices absent")
	}
}

func TestWriteTickUnknownSlug(t *testing.T) {
	w, _, store := setup(t)

	written, err := w.WriteTick(context.Background(), "ghost", model.SourceRest, false)
	if err != nil || written || store.count() != 0 {
		t.Errorf("unknown slug: written=%v err=%v rows=%d", written, err, store.count())
	}
}

func TestWriteTickDedup(t *testing.T) {
	w, books, store := setup(t)
	snap(books, "yes-tok", 0.50, 0.52)
	snap(books, "no-tok", 0.46, 0.48)

	ctx := context.Background()

	// Two consecutive unforced writes with unchanged prices → one row.
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); !written {
		t.Fatal("first write should persist")
	}
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); written {
		t.Fatal("identical second write should dedup")
	}
	if store.count() != 1 {
		t.Fatalf("rows = %d, want 1", store.count())
	}

	// One price changes → another row.
	snap(books, "yes-tok", 0.51, 0.52)
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); !written {
		t.Fatal("changed prices should persist")
	}
	if store.count() != 2 {
		t.Fatalf("rows = %d, want 2", store.count())
	}
}

func TestWriteTickForceBypassesDedup(t *testing.T) {
	w, books, store := setup(t)
	snap(books, "yes-tok", 0.50, 0.52)

	ctx := context.Background()
	w.WriteTick(ctx, "m1", model.SourceRest, false)
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, true); !written {
		t.Error("forced write should persist despite unchanged prices")
	}
	if store.count() != 2 {
		t.Errorf("rows = %d, want 2", store.count())
	}
}

func TestWriteTickFields(t *testing.T) {
	w, books, store := setup(t)
	snap(books, "yes-tok", 0.50, 0.52)
	snap(books, "no-tok", 0.46, 0.48)

	w.WriteTick(context.Background(), "m1", model.SourceRest, false)

	tick := store.lastTick()
	if tick.Slug != "m1" || tick.Source != model.SourceRest {
		t.Errorf("tick = %+v", tick)
	}
	if tick.YesMid == nil || *tick.YesMid != 0.51 {
		t.Errorf("yes mid = %v, want 0.51", tick.YesMid)
	}
	if tick.NoMid == nil || *tick.NoMid != 0.47 {
		t.Errorf("no mid = %v, want 0.47", tick.NoMid)
	}
	if tick.SecondsElapsed != 10 {
		t.Errorf("seconds elapsed = %v, want 10", tick.SecondsElapsed)
	}
	if tick.EpochMS != 1010000 {
		t.Errorf("epoch ms = %d", tick.EpochMS)
	}
}

func TestWriteTickMidAbsentWhenOneSideMissing(t *testing.T) {
	w, books, store := setup(t)
	// Only a bid on the yes side, nothing else.
	books.ReplaceSnapshot("yes-tok", []model.PriceLevel{{Price: 0.50, Size: 1}}, nil)

	w.WriteTick(context.Background(), "m1", model.SourceRest, false)

	tick := store.lastTick()
	if tick.YesMid != nil {
		t.Errorf("yes mid = %v, want nil with no ask", *tick.YesMid)
	}
	if tick.YesBid == nil || *tick.YesBid != 0.50 {
		t.Errorf("yes bid = %v", tick.YesBid)
	}
	if tick.YesAsk != nil || tick.NoBid != nil || tick.NoAsk != nil {
		t.Errorf("absent prices should be nil: %+v", tick)
	}
}

func TestWriteTickFailureKeepsDedupState(t *testing.T) {
	w, books, store := setup(t)
	snap(books, "yes-tok", 0.50, 0.52)

	ctx := context.Background()
	store.fail = true
	written, err := w.WriteTick(ctx, "m1", model.SourceRest, false)
	if written || err == nil {
		t.Fatalf("failed insert: written=%v err=%v", written, err)
	}

	// The same observation must be written once the store recovers.
	store.fail = false
	written, err = w.WriteTick(ctx, "m1", model.SourceRest, false)
	if err != nil || !written {
		t.Fatalf("retry after failure: written=%v err=%v", written, err)
	}
	if store.count() != 1 {
		t.Errorf("rows = %d, want 1", store.count())
	}
}

func TestForgetClearsDedup(t *testing.T) {
	w, books, store := setup(t)
	snap(books, "yes-tok", 0.50, 0.52)

	ctx := context.Background()
	w.WriteTick(ctx, "m1", model.SourceRest, false)
	w.Forget("m1")

	// Same prices again, but dedup state is gone.
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); !written {
		t.Error("write after Forget should persist")
	}
	if store.count() != 2 {
		t.Errorf("rows = %d, want 2", store.count())
	}
}

// End-to-end tick sequence: initial forced tick, delta-driven change,
// then an identical snapshot producing no new row.
func TestTickSequenceScenario(t *testing.T) {
	w, books, store := setup(t)
	ctx := context.Background()

	// t=1: first snapshot, forced initial tick.
	snap(books, "yes-tok", 0.50, 0.52)
	snap(books, "no-tok", 0.46, 0.48)
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, true); !written {
		t.Fatal("initial forced tick not written")
	}
	first := store.lastTick()
	if *first.YesMid != 0.51 || *first.NoMid != 0.47 {
		t.Fatalf("initial mids = %v/%v", *first.YesMid, *first.NoMid)
	}

	// t=2: delta moves the yes bid; next poll writes a second row.
	books.ApplyDelta("yes-tok", []model.PriceLevel{{Price: 0.51, Size: 5}}, nil)
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); !written {
		t.Fatal("tick after price change not written")
	}
	second := store.lastTick()
	if *second.YesMid != model.Mid(0.51, 0.52) {
		t.Fatalf("updated yes mid = %v", *second.YesMid)
	}

	// t=3: identical snapshot, no price change, no new row.
	snap(books, "yes-tok", 0.51, 0.52)
	snap(books, "no-tok", 0.46, 0.48)
	if written, _ := w.WriteTick(ctx, "m1", model.SourceRest, false); written {
		t.Fatal("unchanged snapshot produced a row")
	}
	if store.count() != 2 {
		t.Errorf("rows = %d, want 2", store.count())
	}
}
