package model

import (
	"math"
	"time"
)

// WindowClass identifies how market slugs are bucketed in time.
type WindowClass string

const (
	Window5m  WindowClass = "5m"
	Window15m WindowClass = "15m"
)

// Interval returns the window length, or 0 for an unknown class.
func (w WindowClass) Interval() time.Duration {
	switch w {
	case Window5m:
		return 5 * time.Minute
	case Window15m:
		return 15 * time.Minute
	}
	return 0
}

// Valid reports whether w is a known window class.
func (w WindowClass) Valid() bool {
	return w.Interval() > 0
}

// Side identifies one of the two outcomes of a market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Tick sources.
const (
	SourceRest = "rest" // authoritative snapshot poll
	SourceWS   = "ws"   // supplementary delta stream
)

// Instrument represents one time-windowed up/down market.
//
// Created once by discovery when a new window begins; the only
// mutation afterwards is setting Resolved at expiry.
type Instrument struct {
	Slug        string      // Primary key, deterministic per window
	YesTokenID  string      // CLOB token for the YES/Up outcome
	NoTokenID   string      // CLOB token for the NO/Down outcome
	OpenTS      int64       // Window start (unix seconds)
	CloseTS     int64       // Window end (unix seconds)
	WindowClass WindowClass // "5m" or "15m"
	Resolved    bool
}

// PriceLevel is a single price level of one side of an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Tick is one persisted best-price observation for a market.
//
// Nil pointer fields mean the corresponding side of the book was
// empty at observation time.
type Tick struct {
	Slug           string
	Timestamp      time.Time
	EpochMS        int64
	SecondsElapsed float64
	YesBid         *float64
	YesAsk         *float64
	NoBid          *float64
	NoAsk          *float64
	YesMid         *float64
	NoMid          *float64
	Source         string // "rest" or "ws"
}

// Stats is the per-window-class aggregate exposed to consumers.
type Stats struct {
	TotalMarkets    int64 `json:"total_markets"`
	ResolvedMarkets int64 `json:"resolved_markets"`
	ActiveMarkets   int64 `json:"active_markets"`
	TotalTicks      int64 `json:"total_ticks"`
}

// Mid returns the midpoint of bid and ask rounded to six decimal
// places, keeping stored values stable across repeated identical
// float computations.
func Mid(bid, ask float64) float64 {
	return math.Round((bid+ask)/2*1e6) / 1e6
}
