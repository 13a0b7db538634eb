package directory

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// HomeID is the id of every owner's root directory.
	HomeID = "home"

	// SharedID is the id of the reserved "shared with me" directory.
	SharedID = "shared"

	// NoParent is the parent value of the root directory.
	NoParent = "00000000-0000-0000-0000-000000000000"

	// MastersCohort is the cohort holding master games.
	MastersCohort = "masters"
)

// IsReserved reports whether id names a structurally fixed directory.
func IsReserved(id string) bool {
	return id == HomeID || id == SharedID
}

// Visibility controls the default viewer access of a directory.
type Visibility string

const (
	Public  Visibility = "PUBLIC"
	Private Visibility = "PRIVATE"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == Public || v == Private
}

// Key is the composite primary key of a directory row.
type Key struct {
	Owner string `validate:"required"`
	ID    string `validate:"required"`
}

func (k Key) String() string { return k.Owner + "/" + k.ID }

// Directory is a node in an owner's forest.
type Directory struct {
	Owner      string
	ID         string
	Parent     string
	Name       string
	Visibility Visibility

	// Items holds the children keyed by item id. ItemIDs holds the same keys
	// in display order.
	Items   map[string]Item
	ItemIDs []string

	// Access holds explicit grants. It never contains Owner.
	Access map[string]Role

	// Version increases with every write to the row. Zero means the row
	// predates versioning.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewHome returns the root directory of owner.
func NewHome(owner string, now time.Time) *Directory {
	return &Directory{
		Owner:      owner,
		ID:         HomeID,
		Parent:     NoParent,
		Name:       "Home",
		Visibility: Public,
		Items:      map[string]Item{},
		ItemIDs:    []string{},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewDirectory returns an empty directory with a fresh id.
func NewDirectory(owner, parent, name string, visibility Visibility, now time.Time) *Directory {
	return &Directory{
		Owner:      owner,
		ID:         uuid.NewString(),
		Parent:     parent,
		Name:       name,
		Visibility: visibility,
		Items:      map[string]Item{},
		ItemIDs:    []string{},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Key returns the directory's primary key.
func (d *Directory) Key() Key { return Key{Owner: d.Owner, ID: d.ID} }

// HasParent reports whether d has a parent directory.
func (d *Directory) HasParent() bool {
	return d.Parent != "" && d.Parent != NoParent
}

// IndexOf returns the position of itemID in ItemIDs, or -1.
func (d *Directory) IndexOf(itemID string) int {
	return slices.Index(d.ItemIDs, itemID)
}

// Subdirectory returns the directory item named name, ignoring the item
// with id except.
func (d *Directory) Subdirectory(name, except string) (Item, bool) {
	for id, it := range d.Items {
		if id == except || it.Type != ItemTypeDirectory {
			continue
		}
		if it.Directory != nil && it.Directory.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Clone returns a deep copy of d.
func (d *Directory) Clone() *Directory {
	if d == nil {
		return nil
	}
	c := *d
	c.Items = make(map[string]Item, len(d.Items))
	for k, v := range d.Items {
		c.Items[k] = v.Clone()
	}
	c.ItemIDs = slices.Clone(d.ItemIDs)
	if d.Access != nil {
		c.Access = make(map[string]Role, len(d.Access))
		for k, v := range d.Access {
			c.Access[k] = v
		}
	}
	return &c
}
