// Package journal persists gateway call outcomes in SQLite.
//
// One row per settled logical call: request ID, endpoint, mode, outcome
// kind, upstream status, duration, and whether the caller coalesced onto
// an in-flight execution. The journal backs the admin API's recent-calls
// view and offline analysis of upstream behavior.
//
// The database runs in WAL mode with prepared statements and periodic
// passive checkpoints. Retention is enforced by a cron-scheduled cleanup.
// Journal writes are advisory: the gateway logs and continues when a
// write fails.
package journal
