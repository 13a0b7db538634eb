package directory

import (
	"context"
	"slices"
)

// Get returns the directory if caller can view it, along with caller's role.
//
// Non-owners whose access comes only from public visibility do not see
// private subdirectories unless they hold an explicit grant on them.
func (s *Service) Get(ctx context.Context, owner, id, caller string) (dir *Directory, role Role, err error) {
	const op = "directory.Get"
	defer func() { s.observe(op, err) }()

	res, err := s.authorize(ctx, op, owner, id, caller, RoleViewer)
	if err != nil {
		return nil, RoleNone, err
	}
	if res.role == RoleOwner || res.explicit {
		return res.dir, res.role, nil
	}

	dir = res.dir.Clone()
	for itemID, it := range res.dir.Items {
		if it.Type != ItemTypeDirectory || it.Directory == nil || it.Directory.Visibility != Private {
			continue
		}
		ok, err := s.resolver.CheckAccess(ctx, owner, itemID, caller, RoleViewer, true)
		if err != nil {
			return nil, RoleNone, err
		}
		if !ok {
			delete(dir.Items, itemID)
		}
	}
	dir.ItemIDs = slices.DeleteFunc(dir.ItemIDs, func(itemID string) bool {
		_, ok := dir.Items[itemID]
		return !ok
	})
	return dir, res.role, nil
}
