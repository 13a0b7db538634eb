package directory

import (
	"context"
	"slices"
)

// AddItemsRequest adds games to a directory.
type AddItemsRequest struct {
	Owner  string         `validate:"required"`
	ID     string         `validate:"required"`
	Caller string         `validate:"required"`
	Games  []GameMetadata `validate:"required,min=1,dive"`
}

// AddItems appends the games to the directory in request order. The caller
// needs RoleEditor. Items are written in chunks of Config.AddBatchSize, each
// chunk conditioned on none of its keys existing, so replaying a completed
// request fails with KindConflict rather than duplicating entries. A failure
// leaves earlier chunks committed.
func (s *Service) AddItems(ctx context.Context, req AddItemsRequest) (dir *Directory, err error) {
	const op = "directory.AddItems"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if len(req.Games) > s.cfg.MaxBatchItems {
		return nil, invalid(op, "%d items exceed the limit of %d", len(req.Games), s.cfg.MaxBatchItems)
	}
	if _, err := s.authorize(ctx, op, req.Owner, req.ID, req.Caller, RoleEditor); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(req.Games))
	seen := make(map[string]bool, len(req.Games))
	for _, g := range req.Games {
		it := NewGameItem(g, req.Owner, req.Caller)
		if seen[it.ID] {
			return nil, invalid(op, "game %s is listed twice", it.ID)
		}
		seen[it.ID] = true
		items = append(items, it)
	}
	return s.addItems(ctx, op, req.Owner, req.ID, items)
}

// addItems writes items chunk by chunk, updating game back-references after
// each committed chunk.
func (s *Service) addItems(ctx context.Context, op, owner, id string, items []Item) (*Directory, error) {
	var dir *Directory
	for chunk := range slices.Chunk(items, s.cfg.AddBatchSize) {
		var err error
		dir, err = s.repo.AddItems(ctx, owner, id, chunk, AnyVersion)
		s.metrics.Batch(op)
		if err != nil {
			return nil, err
		}
		s.crossrefAdd(ctx, owner, id, gameItems(chunk))
	}
	return dir, nil
}

// RemoveItemsRequest removes items from a directory.
type RemoveItemsRequest struct {
	Owner   string   `validate:"required"`
	ID      string   `validate:"required"`
	Caller  string   `validate:"required"`
	ItemIDs []string `validate:"required,min=1,dive,required"`
}

// RemoveItems removes items from the directory. The caller needs RoleEditor;
// an editor may only remove items they added. Subdirectories cannot be
// removed this way, use Delete. Items no longer present are skipped.
func (s *Service) RemoveItems(ctx context.Context, req RemoveItemsRequest) (dir *Directory, err error) {
	const op = "directory.RemoveItems"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if len(req.ItemIDs) > s.cfg.MaxBatchItems {
		return nil, invalid(op, "%d items exceed the limit of %d", len(req.ItemIDs), s.cfg.MaxBatchItems)
	}
	return s.removeItems(ctx, op, req.Owner, req.ID, req.Caller, req.ItemIDs, false)
}

// DetachDirectory removes the item referencing a deleted subdirectory from
// its parent. It is the second step after Delete.
func (s *Service) DetachDirectory(ctx context.Context, owner, parentID, childID, caller string) (dir *Directory, err error) {
	const op = "directory.DetachDirectory"
	defer func() { s.observe(op, err) }()

	return s.removeItems(ctx, op, owner, parentID, caller, []string{childID}, true)
}

func (s *Service) removeItems(ctx context.Context, op, owner, id, caller string, itemIDs []string, allowSubdirectory bool) (*Directory, error) {
	res, err := s.authorize(ctx, op, owner, id, caller, RoleEditor)
	if err != nil {
		return nil, err
	}
	dir := res.dir

	remaining := uniqueIDs(itemIDs)
	for _, itemID := range remaining {
		it, ok := dir.Items[itemID]
		if !ok {
			continue
		}
		if it.Type == ItemTypeDirectory && !allowSubdirectory {
			return nil, invalid(op, "%s is a directory, delete it instead", itemID)
		}
		if res.role == RoleEditor && it.AddedBy != caller {
			return nil, forbidden(op, "%s cannot remove %s added by %s", caller, itemID, it.AddedBy)
		}
	}

	for len(remaining) > 0 {
		var (
			removals []Removal
			removed  []Item
			rest     []string
		)
		for _, itemID := range remaining {
			idx := dir.IndexOf(itemID)
			if idx < 0 {
				continue
			}
			if len(removals) == s.cfg.RemoveBatchSize {
				rest = append(rest, itemID)
				continue
			}
			removals = append(removals, Removal{ItemID: itemID, Index: idx})
			removed = append(removed, dir.Items[itemID])
		}
		if len(removals) == 0 {
			break
		}

		dir, err = s.repo.RemoveItems(ctx, owner, id, removals, dir.Version)
		s.metrics.Batch(op)
		if err != nil {
			return nil, err
		}
		s.crossrefRemove(ctx, owner, id, gameItems(removed))
		remaining = rest
	}
	return dir, nil
}

func gameItems(items []Item) []Item {
	var games []Item
	for _, it := range items {
		if it.Type.IsGame() {
			games = append(games, it)
		}
	}
	return games
}
