// Package market tracks the set of live up/down market instruments
// and maps CLOB token ids back to their owning market and side.
//
// The registry is shared by the discovery loop (writes), the snapshot
// poller and the delta stream (reads). Expiry removes an instrument
// and both of its token mappings under one write lock, so a token of
// a just-expired market never demultiplexes.
package market
