// Package store provides SQLite-backed durable storage for cutline sessions.
//
// The store keeps two append-only tables:
//   - Snapshots: every distinct timeline the session produced
//   - Events: the router's dispatched events, keyed by their logical seq
//
// # Ordering
//
// All ordering uses the seq INTEGER assigned by the router's logical clock,
// never timestamps. Reads are ORDER BY seq ASC so that a journal replays in
// dispatch order.
//
// # Idempotency
//
//   - events are keyed by seq; re-appending the same seq is a no-op
//   - a snapshot whose fingerprint equals the latest stored one is skipped
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - one open connection: SQLite allows a single writer
//
// Payloads are stored as JSON TEXT encoded with sonic.
package store
