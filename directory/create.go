package directory

import (
	"context"
	"errors"
)

// createAttempts bounds how often Create re-reads a parent that changed
// between its name check and its write.
const createAttempts = 3

// CreateRequest asks for a new subdirectory of Parent.
type CreateRequest struct {
	Owner      string     `validate:"required"`
	Parent     string     `validate:"required"`
	Name       string     `validate:"required"`
	Visibility Visibility `validate:"required,oneof=PUBLIC PRIVATE"`
	Caller     string     `validate:"required"`
}

// Create makes a new directory under req.Parent and returns it with the
// updated parent. The caller needs RoleAdmin on the parent. Creating under
// HomeID materializes the owner's root on first use.
//
// The name check and the parent item write are tied by the parent's version,
// so of two concurrent creates with the same name only one succeeds.
// The parent item is written before the child row. If the second write fails
// the parent keeps a dangling item until Repair removes it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (dir, parent *Directory, err error) {
	const op = "directory.Create"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, nil, err
	}
	name, err := s.cleanName(op, req.Name)
	if err != nil {
		return nil, nil, err
	}

	parent, err = s.createParent(ctx, op, req)
	if err != nil {
		return nil, nil, err
	}

	dir = NewDirectory(req.Owner, parent.ID, name, req.Visibility, s.now())
	parent, err = s.addSubdirectory(ctx, op, parent, dir, req.Caller)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.PutDirectory(ctx, dir); err != nil {
		s.logger.Error("parent references a directory that was not created",
			"owner", req.Owner,
			"parentId", parent.ID,
			"directoryId", dir.ID,
			"error", err,
		)
		return nil, nil, err
	}

	s.logger.Debug("created directory",
		"owner", req.Owner,
		"parentId", parent.ID,
		"directoryId", dir.ID,
	)
	return dir, parent, nil
}

// addSubdirectory writes the item for dir into parent. The write is
// conditioned on the parent version the name check ran against; when another
// writer got there first the parent is re-read and the check repeated.
func (s *Service) addSubdirectory(ctx context.Context, op string, parent, dir *Directory, caller string) (*Directory, error) {
	item := NewDirectoryItem(dir, caller)
	for attempt := 1; ; attempt++ {
		if existing, ok := parent.Subdirectory(dir.Name, ""); ok {
			return nil, conflict(op, "%s/%s already has a directory named %q (%s)", parent.Owner, parent.ID, dir.Name, existing.ID)
		}
		updated, err := s.repo.AddItems(ctx, parent.Owner, parent.ID, []Item{item}, parent.Version)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConflict) || attempt == createAttempts {
			return nil, err
		}
		s.logger.Debug("parent changed during create, retrying",
			"owner", parent.Owner,
			"parentId", parent.ID,
			"attempt", attempt,
		)
		if parent, err = s.repo.GetDirectory(ctx, parent.Owner, parent.ID); err != nil {
			return nil, err
		}
	}
}

// createParent returns the parent for a create request after checking the
// caller's role, creating the root when it does not exist yet.
func (s *Service) createParent(ctx context.Context, op string, req CreateRequest) (*Directory, error) {
	res, err := s.authorize(ctx, op, req.Owner, req.Parent, req.Caller, RoleAdmin)
	if err == nil {
		return res.dir, nil
	}
	if !errors.Is(err, ErrNotFound) || req.Parent != HomeID {
		return nil, err
	}
	if req.Caller != req.Owner {
		return nil, forbidden(op, "only %s can create their home directory", req.Owner)
	}

	home := NewHome(req.Owner, s.now())
	if err := s.repo.PutDirectory(ctx, home); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		// Created concurrently.
		return s.repo.GetDirectory(ctx, req.Owner, HomeID)
	}
	s.logger.Info("created home directory", "owner", req.Owner)
	return home, nil
}
