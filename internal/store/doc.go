// Package store keeps the gateway's documents in SQLite and publishes a
// change feed for them.
//
// Every collection lives in the shared documents table. A document is a JSON
// object with three reserved fields:
//
//	id         primary key, generated with google/uuid when not supplied
//	createdAt  set on insert
//	updatedAt  set on every write
//
// Queries are filter documents matched in Go (see Match), so the same query
// serves Find, FindOne, FindSince and Observe:
//
//	{"node": "abc", "status": {"$in": ["running", "pending"]}}
//
// Observe registers a callback for created, updated and destroyed changes in
// one collection. Writes are serialised and observers are notified in commit
// order before the write returns. Callbacks must not block and must not write
// to the store.
package store
