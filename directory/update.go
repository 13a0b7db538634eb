package directory

import (
	"context"
	"errors"
)

// UpdateRequest changes a directory's name, visibility or item order. Nil
// fields are left unchanged.
type UpdateRequest struct {
	Owner      string      `validate:"required"`
	ID         string      `validate:"required"`
	Caller     string      `validate:"required"`
	Name       *string     `validate:"omitempty"`
	Visibility *Visibility `validate:"omitempty,oneof=PUBLIC PRIVATE"`
	ItemIDs    []string
}

// Update applies req. Only the owner may update a directory, and the name
// and visibility of reserved directories never change. A new order must
// contain exactly the directory's current items.
//
// Name and visibility are then copied into the parent's cached item. That
// copy is display-only; when it fails the update still succeeds.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (dir *Directory, err error) {
	const op = "directory.Update"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if req.Caller != req.Owner {
		return nil, forbidden(op, "only %s can update %s/%s", req.Owner, req.Owner, req.ID)
	}
	if IsReserved(req.ID) && (req.Name != nil || req.Visibility != nil) {
		return nil, invalid(op, "%s cannot be renamed or change visibility", req.ID)
	}

	current, err := s.repo.GetDirectory(ctx, req.Owner, req.ID)
	if err != nil {
		return nil, err
	}

	var u Update
	if req.Name != nil {
		name, err := s.cleanName(op, *req.Name)
		if err != nil {
			return nil, err
		}
		if name != current.Name {
			if err := s.checkSiblingName(ctx, op, current, name); err != nil {
				return nil, err
			}
			u.Name = &name
		}
	}
	if req.Visibility != nil && *req.Visibility != current.Visibility {
		v := *req.Visibility
		u.Visibility = &v
	}
	if req.ItemIDs != nil {
		if err := checkOrder(op, current, req.ItemIDs); err != nil {
			return nil, err
		}
		u.ItemIDs = req.ItemIDs
		u.ExpectedVersion = current.Version
	}
	if u.Name == nil && u.Visibility == nil && u.ItemIDs == nil {
		return current, nil
	}

	dir, err = s.repo.UpdateDirectory(ctx, req.Owner, req.ID, u)
	if err != nil {
		return nil, err
	}

	if (u.Name != nil || u.Visibility != nil) && dir.HasParent() {
		if err := s.repo.UpdateItemMetadata(ctx, dir.Owner, dir.Parent, NewDirectoryItem(dir, "")); err != nil {
			s.metrics.SideEffectFailed("parent_metadata")
			s.logger.Warn("failed to update directory metadata in parent",
				"owner", dir.Owner,
				"directoryId", dir.ID,
				"parentId", dir.Parent,
				"error", err,
			)
		}
	}
	return dir, nil
}

// checkSiblingName fails if the parent of dir already holds another
// directory called name.
func (s *Service) checkSiblingName(ctx context.Context, op string, dir *Directory, name string) error {
	if !dir.HasParent() {
		return nil
	}
	parent, err := s.repo.GetDirectory(ctx, dir.Owner, dir.Parent)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if existing, ok := parent.Subdirectory(name, dir.ID); ok {
		return conflict(op, "%s/%s already has a directory named %q (%s)", dir.Owner, parent.ID, name, existing.ID)
	}
	return nil
}

// checkOrder verifies that order is a permutation of dir's items.
func checkOrder(op string, dir *Directory, order []string) error {
	if len(order) != len(dir.Items) {
		return invalid(op, "order lists %d items, directory holds %d", len(order), len(dir.Items))
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := dir.Items[id]; !ok {
			return invalid(op, "order lists unknown item %s", id)
		}
		if seen[id] {
			return invalid(op, "order lists %s twice", id)
		}
		seen[id] = true
	}
	return nil
}
