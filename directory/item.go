package directory

import (
	"fmt"
	"time"
)

// ItemType discriminates the Item union.
type ItemType string

const (
	ItemTypeDirectory  ItemType = "DIRECTORY"
	ItemTypeOwnedGame  ItemType = "OWNED_GAME"
	ItemTypeDojoGame   ItemType = "DOJO_GAME"
	ItemTypeMasterGame ItemType = "MASTER_GAME"
)

// IsGame reports whether t references a game record.
func (t ItemType) IsGame() bool {
	switch t {
	case ItemTypeOwnedGame, ItemTypeDojoGame, ItemTypeMasterGame:
		return true
	}
	return false
}

// DirectoryMetadata is the cached view of a subdirectory held by its parent.
type DirectoryMetadata struct {
	Name       string
	Visibility Visibility
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GameMetadata references a game record and caches the fields needed to
// display it and compute statistics without fetching the game.
type GameMetadata struct {
	Cohort           string `validate:"required"`
	ID               string `validate:"required"`
	Owner            string
	OwnerDisplayName string
	White            string
	Black            string
	WhiteElo         int
	BlackElo         int
	Result           string
	Date             string
	CreatedAt        time.Time
}

// Item is a child reference stored in a directory. Exactly one of Directory
// and Game is set, as selected by Type.
type Item struct {
	Type    ItemType
	ID      string
	AddedBy string

	Directory *DirectoryMetadata
	Game      *GameMetadata
}

// GameItemID returns the item id used for a game.
func GameItemID(cohort, id string) string {
	return cohort + "/" + id
}

// NewDirectoryItem returns the item referencing dir.
func NewDirectoryItem(dir *Directory, addedBy string) Item {
	return Item{
		Type:    ItemTypeDirectory,
		ID:      dir.ID,
		AddedBy: addedBy,
		Directory: &DirectoryMetadata{
			Name:       dir.Name,
			Visibility: dir.Visibility,
			CreatedAt:  dir.CreatedAt,
			UpdatedAt:  dir.UpdatedAt,
		},
	}
}

// NewGameItem returns the item referencing game inside a directory owned by
// owner. The type records where the game came from and carries no permission
// meaning.
func NewGameItem(game GameMetadata, owner, addedBy string) Item {
	t := ItemTypeDojoGame
	switch {
	case game.Owner == owner:
		t = ItemTypeOwnedGame
	case game.Cohort == MastersCohort:
		t = ItemTypeMasterGame
	}
	g := game
	return Item{
		Type:    t,
		ID:      GameItemID(game.Cohort, game.ID),
		AddedBy: addedBy,
		Game:    &g,
	}
}

// Name returns the display name of the item.
func (it Item) Name() string {
	switch it.Type {
	case ItemTypeDirectory:
		if it.Directory != nil {
			return it.Directory.Name
		}
	case ItemTypeOwnedGame, ItemTypeDojoGame, ItemTypeMasterGame:
		if it.Game != nil {
			return it.Game.White + " - " + it.Game.Black
		}
	}
	return ""
}

// Validate checks that the payload matches the discriminant.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item has no id")
	}
	switch it.Type {
	case ItemTypeDirectory:
		if it.Directory == nil || it.Game != nil {
			return fmt.Errorf("item %s: directory item must carry only directory metadata", it.ID)
		}
	case ItemTypeOwnedGame, ItemTypeDojoGame, ItemTypeMasterGame:
		if it.Game == nil || it.Directory != nil {
			return fmt.Errorf("item %s: game item must carry only game metadata", it.ID)
		}
		if want := GameItemID(it.Game.Cohort, it.Game.ID); want != it.ID {
			return fmt.Errorf("item %s: id does not match game %s", it.ID, want)
		}
	default:
		return fmt.Errorf("item %s: unknown type %q", it.ID, it.Type)
	}
	return nil
}

// Clone returns a deep copy of it.
func (it Item) Clone() Item {
	c := it
	if it.Directory != nil {
		d := *it.Directory
		c.Directory = &d
	}
	if it.Game != nil {
		g := *it.Game
		c.Game = &g
	}
	return c
}
