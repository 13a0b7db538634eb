package directory

import (
	"context"
	"errors"
)

// Resolver computes the role a user holds on a directory.
type Resolver struct {
	getter   Getter
	maxDepth int
}

// NewResolver creates a Resolver. maxDepth bounds the parent chain; values
// below one use the default.
func NewResolver(getter Getter, maxDepth int) *Resolver {
	if maxDepth < 1 {
		maxDepth = DefaultConfig().MaxDepth
	}
	return &Resolver{getter: getter, maxDepth: maxDepth}
}

// resolution is the outcome of walking the parent chain.
type resolution struct {
	role Role
	dir  *Directory

	// explicit is set when role came from an access map rather than from
	// ownership or public visibility.
	explicit bool
}

// ResolveRole returns the role username holds on owner's directory id.
// Missing directories resolve to RoleNone.
func (r *Resolver) ResolveRole(ctx context.Context, owner, id, username string) (Role, error) {
	if username == owner {
		return RoleOwner, nil
	}
	res, err := r.resolve(ctx, owner, id, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	return res.role, nil
}

// resolve fetches the directory and walks its ancestors. Unlike ResolveRole
// it reports a missing target as KindNotFound and returns the fetched row.
func (r *Resolver) resolve(ctx context.Context, owner, id, username string) (resolution, error) {
	dir, err := r.getter.GetDirectory(ctx, owner, id)
	if err != nil {
		return resolution{}, err
	}
	if username == owner {
		return resolution{role: RoleOwner, dir: dir}, nil
	}

	role, found, err := r.walk(ctx, dir, username, false)
	if err != nil {
		return resolution{}, err
	}
	if found {
		res := resolution{role: role, dir: dir, explicit: true}
		if role < RoleViewer && dir.Visibility == Public {
			res.role = RoleViewer
		}
		return res, nil
	}
	if dir.Visibility == Public {
		return resolution{role: RoleViewer, dir: dir}, nil
	}
	return resolution{role: RoleNone, dir: dir}, nil
}

// walk looks for the nearest explicit grant for username starting at dir.
func (r *Resolver) walk(ctx context.Context, dir *Directory, username string, skipRecursion bool) (Role, bool, error) {
	visited := map[string]bool{dir.ID: true}
	cur := dir
	for depth := 0; ; depth++ {
		if role, ok := cur.Access[username]; ok {
			return role, true, nil
		}
		if skipRecursion || !cur.HasParent() {
			return RoleNone, false, nil
		}
		if visited[cur.Parent] || depth >= r.maxDepth {
			return RoleNone, false, Errorf(KindFatal, "access.resolve", nil,
				"parent chain of %s/%s loops or exceeds depth %d at %s", dir.Owner, dir.ID, r.maxDepth, cur.Parent)
		}
		visited[cur.Parent] = true

		parent, err := r.getter.GetDirectory(ctx, cur.Owner, cur.Parent)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return RoleNone, false, nil
			}
			return RoleNone, false, err
		}
		cur = parent
	}
}

// CheckAccess reports whether username holds at least required on the
// directory. With skipRecursion only the directory's own access map is
// consulted.
func (r *Resolver) CheckAccess(ctx context.Context, owner, id, username string, required Role, skipRecursion bool) (bool, error) {
	if username == owner {
		return true, nil
	}
	dir, err := r.getter.GetDirectory(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	role, found, err := r.walk(ctx, dir, username, skipRecursion)
	if err != nil {
		return false, err
	}
	if found && role >= required {
		return true, nil
	}
	return required <= RoleViewer && dir.Visibility == Public, nil
}
