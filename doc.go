// Package docsync is a transactional document synchronization engine.
//
// Documents live in a relational SQLite store alongside their chunks and
// sync tasks; embedded vectors live in a Badger-backed index. The Engine
// drives documents through a persisted state machine (split, embed,
// upsert, mark synced) with bounded retries, and wraps every relational
// mutation in an explicitly coordinated transaction supporting
// savepoints, nesting and inverse-operation rollback.
package docsync
