// Package store provides SQLite-backed durable storage for lamp records.
//
// Lamps implements lamp.Store with the same contract as the in-memory JSON
// store: partial updates touch only on/x/y, and every successful update is
// announced as a lamp.StateChanged event.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: SQLite allows one writer
//
// The schema version lives in PRAGMA user_version; databases from a newer
// schema are refused rather than guessed at.
package store
