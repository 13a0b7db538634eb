package directory

import (
	"context"
	"errors"
	"slices"
)

// MoveRequest moves items from Source to Target.
type MoveRequest struct {
	Source  Key      `validate:"required"`
	Target  Key      `validate:"required"`
	ItemIDs []string `validate:"required,min=1,dive,required"`
	Caller  string   `validate:"required"`
}

// Move transfers items between directories and returns the updated source
// and target. The caller needs RoleEditor on both; an editor may only move
// items they added. Moved items are attributed to the caller and keep their
// relative source order.
//
// Items are added to the target before they are removed from the source, so
// a failure in between leaves them in both directories, never in neither.
// Re-running the request then fails on the add; finish with RemoveItems or
// DetachDirectory on the source.
func (s *Service) Move(ctx context.Context, req MoveRequest) (source, target *Directory, err error) {
	const op = "directory.Move"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, nil, err
	}
	if req.Source == req.Target {
		return nil, nil, invalid(op, "source and target are both %s", req.Source)
	}
	if len(req.ItemIDs) > s.cfg.MaxBatchItems {
		return nil, nil, invalid(op, "%d items exceed the limit of %d", len(req.ItemIDs), s.cfg.MaxBatchItems)
	}

	src, err := s.authorize(ctx, op, req.Source.Owner, req.Source.ID, req.Caller, RoleEditor)
	if err != nil {
		return nil, nil, err
	}
	tgt, err := s.authorize(ctx, op, req.Target.Owner, req.Target.ID, req.Caller, RoleEditor)
	if err != nil {
		return nil, nil, err
	}

	ids := uniqueIDs(req.ItemIDs)
	moved := make([]Item, 0, len(ids))
	var subdirs []string
	for _, itemID := range ids {
		it, ok := src.dir.Items[itemID]
		if !ok {
			return nil, nil, notFound(op, "%s is not in %s", itemID, req.Source)
		}
		if src.role == RoleEditor && it.AddedBy != req.Caller {
			return nil, nil, forbidden(op, "%s cannot move %s added by %s", req.Caller, itemID, it.AddedBy)
		}
		if it.Type == ItemTypeDirectory {
			if err := s.checkDirectoryMove(ctx, op, it, req.Source, tgt.dir); err != nil {
				return nil, nil, err
			}
			subdirs = append(subdirs, itemID)
		}
		if it.Game != nil {
			// ownership is relative to the target's owner
			it = NewGameItem(*it.Game, req.Target.Owner, req.Caller)
		} else {
			it = it.Clone()
			it.AddedBy = req.Caller
		}
		moved = append(moved, it)
	}
	sortBySource(moved, src.dir)

	target, err = s.addItems(ctx, op, req.Target.Owner, req.Target.ID, moved)
	if err != nil {
		return nil, nil, err
	}

	if len(subdirs) > 0 {
		if err := s.repo.SetParents(ctx, req.Target.Owner, subdirs, req.Target.ID); err != nil {
			s.metrics.SideEffectFailed("parent_pointer")
			s.logger.Warn("failed to update parent of moved directories",
				"owner", req.Target.Owner,
				"targetId", req.Target.ID,
				"directoryIds", subdirs,
				"error", err,
			)
		}
	}

	source, err = s.removeItems(ctx, op, req.Source.Owner, req.Source.ID, req.Caller, ids, true)
	if err != nil {
		s.logger.Error("moved items remain in source",
			"source", req.Source.String(),
			"target", req.Target.String(),
			"items", len(ids),
			"error", err,
		)
		return nil, nil, err
	}
	return source, target, nil
}

// checkDirectoryMove rejects moves that would break the tree: across owners,
// into itself or a descendant, or next to a sibling of the same name.
func (s *Service) checkDirectoryMove(ctx context.Context, op string, it Item, source Key, target *Directory) error {
	if source.Owner != target.Owner {
		return invalid(op, "directory %s cannot move to another owner's tree", it.ID)
	}
	if existing, ok := target.Subdirectory(it.Directory.Name, ""); ok {
		return conflict(op, "%s already has a directory named %q (%s)", target.Key(), it.Directory.Name, existing.ID)
	}
	ancestor, err := s.isAncestor(ctx, op, it.ID, target)
	if err != nil {
		return err
	}
	if ancestor {
		return invalid(op, "directory %s cannot move into itself or its descendant %s", it.ID, target.ID)
	}
	return nil
}

// isAncestor reports whether id is dir or one of its ancestors.
func (s *Service) isAncestor(ctx context.Context, op, id string, dir *Directory) (bool, error) {
	visited := map[string]bool{}
	cur := dir
	for depth := 0; ; depth++ {
		if cur.ID == id {
			return true, nil
		}
		if !cur.HasParent() {
			return false, nil
		}
		if visited[cur.ID] || depth >= s.cfg.MaxDepth {
			return false, Errorf(KindFatal, op, nil, "parent chain of %s loops or exceeds depth %d", dir.Key(), s.cfg.MaxDepth)
		}
		visited[cur.ID] = true

		parent, err := s.repo.GetDirectory(ctx, cur.Owner, cur.Parent)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		cur = parent
	}
}

// sortBySource orders items by their position in src.ItemIDs.
func sortBySource(items []Item, src *Directory) {
	pos := make(map[string]int, len(src.ItemIDs))
	for i, id := range src.ItemIDs {
		pos[id] = i
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return pos[a.ID] - pos[b.ID]
	})
}
