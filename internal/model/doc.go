// Package model defines shared data types used across the collector.
//
// Conventions:
//   - Prices: float64 dollars in [0, 1], as delivered by the CLOB feed
//   - Timestamps: int64 unix seconds for market open/close times,
//     epoch milliseconds for tick rows
//   - Slugs: deterministic per window (e.g. "btc-updown-5m-1700000100")
package model
