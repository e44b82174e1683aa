// Package api provides REST access to the two upstream services the
// collector consumes: the Gamma API (market metadata, slug → token
// resolution) and the CLOB API (full order-book snapshots).
package api
