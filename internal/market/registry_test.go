package market

import (
	"sync"
	"testing"

	"github.com/polyflow/updown-data/internal/model"
)

func testInstrument(slug string, class model.WindowClass) model.Instrument {
	return model.Instrument{
		Slug:        slug,
		YesTokenID:  slug + "-yes",
		NoTokenID:   slug + "-no",
		OpenTS:      1000,
		CloseTS:     1300,
		WindowClass: class,
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	inst := testInstrument("m1", model.Window5m)

	if !r.Register(inst) {
		t.Fatal("first Register returned false")
	}
	if r.Register(inst) {
		t.Error("second Register returned true, want no-op")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("m1", model.Window5m))

	got, ok := r.Lookup("m1")
	if !ok || got.YesTokenID != "m1-yes" {
		t.Errorf("Lookup(m1) = %+v, %v", got, ok)
	}
	if _, ok := r.Lookup("absent"); ok {
		t.Error("Lookup(absent) should miss")
	}
}

func TestActiveByClass(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("a", model.Window5m))
	r.Register(testInstrument("b", model.Window5m))
	r.Register(testInstrument("c", model.Window15m))

	if got := len(r.Active(model.Window5m)); got != 2 {
		t.Errorf("Active(5m) = %d instruments, want 2", got)
	}
	if got := len(r.Active(model.Window15m)); got != 1 {
		t.Errorf("Active(15m) = %d instruments, want 1", got)
	}
	if got := len(r.Active("")); got != 3 {
		t.Errorf("Active(\"\") = %d instruments, want 3", got)
	}
}

func TestDemux(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("m1", model.Window5m))

	slug, side, ok := r.Demux("m1-yes")
	if !ok || slug != "m1" || side != model.SideYes {
		t.Errorf("Demux(m1-yes) = %q, %q, %v", slug, side, ok)
	}
	slug, side, ok = r.Demux("m1-no")
	if !ok || slug != "m1" || side != model.SideNo {
		t.Errorf("Demux(m1-no) = %q, %q, %v", slug, side, ok)
	}
	if _, _, ok := r.Demux("unknown"); ok {
		t.Error("Demux(unknown) should miss")
	}
}

func TestExpireRemovesTokenMappings(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("m1", model.Window5m))

	inst, ok := r.Expire("m1")
	if !ok || inst.Slug != "m1" {
		t.Fatalf("Expire(m1) = %+v, %v", inst, ok)
	}

	if _, ok := r.Lookup("m1"); ok {
		t.Error("expired instrument still in registry")
	}
	if _, _, ok := r.Demux("m1-yes"); ok {
		t.Error("yes token of expired instrument still demuxes")
	}
	if _, _, ok := r.Demux("m1-no"); ok {
		t.Error("no token of expired instrument still demuxes")
	}

	if _, ok := r.Expire("m1"); ok {
		t.Error("double Expire returned true")
	}
}

func TestActiveTokens(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("m1", model.Window5m))
	r.Register(testInstrument("m2", model.Window15m))

	tokens := r.ActiveTokens()
	if len(tokens) != 4 {
		t.Errorf("ActiveTokens() = %d tokens, want 4", len(tokens))
	}
}

// Demux while concurrently expiring must either resolve the live
// instrument or miss, never panic or return a half-removed mapping.
func TestExpireConcurrentWithDemux(t *testing.T) {
	r := NewRegistry()
	r.Register(testInstrument("m1", model.Window5m))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if slug, _, ok := r.Demux("m1-yes"); ok && slug != "m1" {
				t.Errorf("Demux resolved to wrong slug %q", slug)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		r.Expire("m1")
	}()
	wg.Wait()
}
