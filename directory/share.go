package directory

import "context"

// ShareRequest replaces the explicit grants of a directory.
type ShareRequest struct {
	Owner  string `validate:"required"`
	ID     string `validate:"required"`
	Caller string `validate:"required"`
	Access map[string]Role
}

// Share overwrites the directory's access map with req.Access. The caller
// needs RoleAdmin. Only viewer, editor and admin can be granted; an entry for
// the owner is dropped. Usernames are not checked against any user list.
func (s *Service) Share(ctx context.Context, req ShareRequest) (dir *Directory, err error) {
	const op = "directory.Share"
	defer func() { s.observe(op, err) }()

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}

	access := make(map[string]Role, len(req.Access))
	for user, role := range req.Access {
		if user == "" {
			return nil, invalid(op, "access map has an empty username")
		}
		if !role.Grantable() {
			return nil, invalid(op, "role %s cannot be granted to %s", role, user)
		}
		if user == req.Owner {
			continue
		}
		access[user] = role
	}

	if _, err := s.authorize(ctx, op, req.Owner, req.ID, req.Caller, RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.SetAccess(ctx, req.Owner, req.ID, access)
}
