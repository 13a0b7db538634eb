package directory

import "context"

// Delete removes a single directory row and returns its prior image. Only
// the owner may delete, and reserved directories cannot be deleted.
//
// Subdirectories are removed later by the cascade deleter reacting to the
// deletion. The parent still references the directory until DetachDirectory
// is called.
func (s *Service) Delete(ctx context.Context, owner, id, caller string) (dir *Directory, err error) {
	const op = "directory.Delete"
	defer func() { s.observe(op, err) }()

	if owner == "" || id == "" {
		return nil, invalid(op, "owner and id are required")
	}
	if caller != owner {
		return nil, forbidden(op, "only %s can delete %s/%s", owner, owner, id)
	}
	if IsReserved(id) {
		return nil, invalid(op, "%s cannot be deleted", id)
	}
	return s.repo.DeleteDirectory(ctx, owner, id)
}
