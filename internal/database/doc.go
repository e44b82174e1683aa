// Package database manages the Postgres connection pool holding the
// collector's durable state (markets and price ticks).
package database
