// Package store is the DynamoDB implementation of directory.Repository.
//
// Directories live in a single table keyed by owner (partition key) and id
// (sort key). A row carries the directory's metadata, its items map keyed by
// item id, the itemIds display order, the access map and a version counter.
//
// # Writes
//
// Every write is one request guarded by a condition expression:
//
//   - PutDirectory requires the key to be absent
//   - AddItems requires the row to exist and each added item key to be
//     absent, and optionally the version read by the caller
//   - RemoveItems requires the version read by the caller, or for rows
//     written before versioning, the list position of each removed id
//   - UpdateDirectory, SetAccess and UpdateItemMetadata require the row
//     (and for metadata, the item) to exist
//
// Failed conditions are reported as directory.KindConflict. Throttling,
// server faults, transport errors and an open circuit breaker are reported
// as directory.KindTransient.
//
// # Statements
//
// SetParents and [Store.ExecuteStatements] send PartiQL statements through
// BatchExecuteStatement. They are best effort: each statement succeeds or
// fails on its own.
//
// # Configuration
//
// Use [DefaultConfig] and override table names per environment:
//
//	cfg := store.DefaultConfig()
//	cfg.DirectoryTable = "prod-directories"
//	cfg.Breaker.Enabled = true
//	s := store.New(dynamodb.NewFromConfig(awsCfg), cfg)
package store
