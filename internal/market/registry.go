package market

import (
	"sync"

	"github.com/polyflow/updown-data/internal/model"
)

// tokenRef points one CLOB token back to its market and side.
type tokenRef struct {
	slug string
	side model.Side
}

// Registry is the thread-safe instrument cache.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*model.Instrument
	tokens      map[string]tokenRef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]*model.Instrument),
		tokens:      make(map[string]tokenRef),
	}
}

// Register inserts an instrument and its token mappings. It is
// idempotent: registering an already-present slug is a no-op and
// returns false.
func (r *Registry) Register(inst model.Instrument) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instruments[inst.Slug]; ok {
		return false
	}

	instCopy := inst
	r.instruments[inst.Slug] = &instCopy
	r.tokens[inst.YesTokenID] = tokenRef{slug: inst.Slug, side: model.SideYes}
	r.tokens[inst.NoTokenID] = tokenRef{slug: inst.Slug, side: model.SideNo}
	return true
}

// Lookup returns the instrument for a slug.
func (r *Registry) Lookup(slug string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instruments[slug]
	if !ok {
		return model.Instrument{}, false
	}
	return *inst, true
}

// Active returns a copy of the tracked instruments of one window
// class, or of all classes when class is empty.
func (r *Registry) Active(class model.WindowClass) []model.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		if class == "" || inst.WindowClass == class {
			result = append(result, *inst)
		}
	}
	return result
}

// ActiveTokens returns every token id currently tracked.
func (r *Registry) ActiveTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		result = append(result, token)
	}
	return result
}

// Demux resolves a token id to its market slug and side. Tokens of
// expired or unknown markets do not resolve; callers drop their data.
func (r *Registry) Demux(token string) (string, model.Side, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.tokens[token]
	if !ok {
		return "", "", false
	}
	return ref.slug, ref.side, true
}

// Expire removes an instrument and both of its token mappings
// atomically and returns the removed instrument.
func (r *Registry) Expire(slug string) (model.Instrument, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instruments[slug]
	if !ok {
		return model.Instrument{}, false
	}

	delete(r.instruments, slug)
	delete(r.tokens, inst.YesTokenID)
	delete(r.tokens, inst.NoTokenID)
	return *inst, true
}

// Len returns the number of tracked instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
