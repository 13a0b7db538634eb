package directory

import "context"

// Getter fetches a single directory row.
type Getter interface {
	// GetDirectory returns the row, or an error of KindNotFound.
	GetDirectory(ctx context.Context, owner, id string) (*Directory, error)
}

// AnyVersion tells AddItems not to condition the write on the row version.
const AnyVersion int64 = -1

// Removal identifies one item to drop from a directory together with its
// position in the ItemIDs read by the caller.
type Removal struct {
	ItemID string
	Index  int
}

// Update describes a metadata or order change. Nil fields are left as is.
type Update struct {
	Name       *string
	Visibility *Visibility

	// ItemIDs replaces the display order. ExpectedVersion must then hold the
	// version the new order was computed from.
	ItemIDs         []string
	ExpectedVersion int64
}

// Repository is the persistence boundary for directories. Every write is a
// single conditional request; condition failures are reported as
// KindConflict and infrastructure failures as KindTransient.
type Repository interface {
	Getter

	// ListDirectories returns every directory row of owner.
	ListDirectories(ctx context.Context, owner string) ([]*Directory, error)

	// PutDirectory inserts dir if no row with its key exists.
	PutDirectory(ctx context.Context, dir *Directory) error

	// AddItems appends items to the directory, requiring that the row
	// exists and that none of the item keys exist yet. Unless
	// expectedVersion is AnyVersion the row must also still be at that
	// version.
	AddItems(ctx context.Context, owner, id string, items []Item, expectedVersion int64) (*Directory, error)

	// RemoveItems drops the given items. When expectedVersion is non-zero
	// the write requires the row to still be at that version; otherwise each
	// removal's list position is asserted.
	RemoveItems(ctx context.Context, owner, id string, removals []Removal, expectedVersion int64) (*Directory, error)

	// UpdateDirectory applies u, requiring that the row exists.
	UpdateDirectory(ctx context.Context, owner, id string, u Update) (*Directory, error)

	// UpdateItemMetadata refreshes the cached metadata of a directory item
	// inside its parent, requiring that the item still exists there.
	UpdateItemMetadata(ctx context.Context, owner, parentID string, item Item) error

	// SetAccess replaces the access map, requiring that the row exists.
	SetAccess(ctx context.Context, owner, id string, access map[string]Role) (*Directory, error)

	// DeleteDirectory removes the row and returns its prior image.
	DeleteDirectory(ctx context.Context, owner, id string) (*Directory, error)

	// SetParents rewrites the parent pointer of each listed directory.
	// Unconditional and best-effort: partial failure is possible.
	SetParents(ctx context.Context, owner string, ids []string, parent string) error
}

// ItemLimiter is implemented by repositories that cap the number of items
// one AddItems call can write.
type ItemLimiter interface {
	MaxItemsPerUpdate() int
}

// CrossReferencer maintains the back-reference from games to the
// directories containing them. Failures are logged by callers and never
// fail a directory operation.
type CrossReferencer interface {
	AddDirectory(ctx context.Context, owner, directoryID string, items []Item) error
	RemoveDirectory(ctx context.Context, owner, directoryID string, items []Item) error
}
