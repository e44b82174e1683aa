// Package book maintains the in-memory order-book view for every
// tracked CLOB token.
//
// Books are fed from two sources: wholesale snapshot replacement by
// the REST poller (authoritative) and incremental deltas from the
// WebSocket stream (best-effort). Last write wins per price level;
// each snapshot supersedes all prior state for its token.
package book

import (
	"sync"

	"github.com/polyflow/updown-data/internal/model"
)

// Best holds the top of book for one token. HasBid/HasAsk are false
// when the corresponding side of the book is empty.
type Best struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
}

// sideBook is the two price→size maps for one token.
type sideBook struct {
	bids map[float64]float64
	asks map[float64]float64
}

func newSideBook() *sideBook {
	return &sideBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// Store holds order books indexed by token id.
type Store struct {
	mu    sync.RWMutex
	books map[string]*sideBook
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{books: make(map[string]*sideBook)}
}

// ReplaceSnapshot replaces the token's book wholesale. Levels with
// non-positive size are dropped, never stored.
func (s *Store) ReplaceSnapshot(token string, bids, asks []model.PriceLevel) {
	b := newSideBook()
	for _, l := range bids {
		if l.Size > 0 {
			b.bids[l.Price] = l.Size
		}
	}
	for _, l := range asks {
		if l.Size > 0 {
			b.asks[l.Price] = l.Size
		}
	}

	s.mu.Lock()
	s.books[token] = b
	s.mu.Unlock()
}

// ApplyDelta applies incremental level updates. A level with size 0
// removes that price; size > 0 upserts it. An unknown token gets an
// empty book first, so deltas arriving before the first snapshot are
// not lost.
func (s *Store) ApplyDelta(token string, bids, asks []model.PriceLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[token]
	if !ok {
		b = newSideBook()
		s.books[token] = b
	}

	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
}

func applyLevels(side map[float64]float64, levels []model.PriceLevel) {
	for _, l := range levels {
		if l.Size <= 0 {
			delete(side, l.Price)
		} else {
			side[l.Price] = l.Size
		}
	}
}

// Best returns the top of book for one token.
func (s *Store) Best(token string) Best {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestLocked(token)
}

// BestPair returns the tops of two tokens' books read at a single
// instant, so one tick's four price fields never tear.
func (s *Store) BestPair(tokenA, tokenB string) (Best, Best) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestLocked(tokenA), s.bestLocked(tokenB)
}

func (s *Store) bestLocked(token string) Best {
	b, ok := s.books[token]
	if !ok {
		return Best{}
	}

	var best Best
	for p := range b.bids {
		if !best.HasBid || p > best.Bid {
			best.Bid = p
			best.HasBid = true
		}
	}
	for p := range b.asks {
		if !best.HasAsk || p < best.Ask {
			best.Ask = p
			best.HasAsk = true
		}
	}
	return best
}

// Forget drops all state for a token. Called at instrument expiry.
func (s *Store) Forget(token string) {
	s.mu.Lock()
	delete(s.books, token)
	s.mu.Unlock()
}

// Len returns the number of tracked tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}
