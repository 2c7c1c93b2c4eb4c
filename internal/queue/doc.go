// Package queue persists jobs, items, accounts, and fetch artifacts in
// SQLite. A job is one fetch+transcode pipeline run for an item; at most
// one non-done job may exist per item at any time (enforced by a partial
// unique index, so concurrent enqueues race safely).
package queue
