// Package directory implements a user-owned tree of folders holding chess games.
//
// Each owner has a forest of directories rooted at the reserved [HomeID]. A
// directory row stores its children in an items map plus an itemIds list that
// fixes display order. All structural writes go through a [Repository] whose
// writes are conditional; there are no multi-row transactions.
//
// # Access
//
// Roles are totally ordered: [RoleNone] < [RoleViewer] < [RoleEditor] <
// [RoleAdmin] < [RoleOwner]. The owner always holds [RoleOwner]. Other users
// inherit the nearest explicit grant found walking up the parent chain; public
// directories additionally grant [RoleViewer] to everyone. See [Resolver].
//
// # Operations
//
// [Service] exposes Create, Get, AddItems, RemoveItems, Move, Update, Share,
// Delete, Audit and Repair. Multi-step operations never roll back: Move adds to
// the target before removing from the source, so a partial failure duplicates
// items instead of losing them.
//
// Delete removes a single row. Descendants are removed asynchronously by the
// cascade deleter in package stream, and the parent's item reference is
// removed by a separate [Service.DetachDirectory] call.
//
// # Errors
//
// Every failure is an [*Error] carrying a [Kind]. Use errors.Is with
// [ErrNotFound], [ErrForbidden], [ErrConflict], [ErrInvalidRequest],
// [ErrTransient] or [ErrFatal].
package directory
