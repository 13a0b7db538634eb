package directory

import (
	"cmp"
	"context"
	"errors"
	"slices"
)

// Problem names a kind of tree anomaly.
type Problem string

const (
	// ProblemDanglingItem is a directory item whose child row does not exist,
	// left behind by a Create whose second write failed.
	ProblemDanglingItem Problem = "dangling_item"
	// ProblemParentMismatch is a directory item whose child row points to a
	// different parent.
	ProblemParentMismatch Problem = "parent_mismatch"
	// ProblemOrphan is a row whose parent is missing or does not list it.
	// Expected while the cascade deleter catches up.
	ProblemOrphan Problem = "orphan"
	// ProblemRow is a per-row invariant violation.
	ProblemRow Problem = "row_invariant"
)

// Anomaly describes one inconsistency found by Audit.
type Anomaly struct {
	Directory Key
	ItemID    string
	Problem   Problem
	Detail    string
}

// Audit lists inconsistencies across all of owner's directories. Only the
// owner may audit. Cross-row anomalies are expected briefly after partial
// failures or deletions.
func (s *Service) Audit(ctx context.Context, owner, caller string) (anomalies []Anomaly, err error) {
	const op = "directory.Audit"
	defer func() { s.observe(op, err) }()

	if caller != owner {
		return nil, forbidden(op, "only %s can audit their directories", owner)
	}
	dirs, err := s.repo.ListDirectories(ctx, owner)
	if err != nil {
		return nil, err
	}
	return audit(dirs), nil
}

func audit(dirs []*Directory) []Anomaly {
	byID := make(map[string]*Directory, len(dirs))
	for _, d := range dirs {
		byID[d.ID] = d
	}

	var out []Anomaly
	for _, d := range dirs {
		if err := CheckInvariants(d); err != nil {
			for _, e := range unjoin(err) {
				out = append(out, Anomaly{Directory: d.Key(), Problem: ProblemRow, Detail: e.Error()})
			}
		}
		for id, it := range d.Items {
			if it.Type != ItemTypeDirectory {
				continue
			}
			child, ok := byID[id]
			switch {
			case !ok:
				out = append(out, Anomaly{Directory: d.Key(), ItemID: id, Problem: ProblemDanglingItem,
					Detail: "child row does not exist"})
			case child.Parent != d.ID:
				out = append(out, Anomaly{Directory: d.Key(), ItemID: id, Problem: ProblemParentMismatch,
					Detail: "child row points to " + child.Parent})
			}
		}
		if !d.HasParent() {
			continue
		}
		parent, ok := byID[d.Parent]
		if !ok {
			out = append(out, Anomaly{Directory: d.Key(), Problem: ProblemOrphan, Detail: "parent " + d.Parent + " does not exist"})
		} else if _, listed := parent.Items[d.ID]; !listed {
			out = append(out, Anomaly{Directory: d.Key(), Problem: ProblemOrphan, Detail: "parent " + d.Parent + " does not list it"})
		}
	}

	slices.SortFunc(out, func(a, b Anomaly) int {
		return cmp.Or(
			cmp.Compare(a.Directory.ID, b.Directory.ID),
			cmp.Compare(a.Problem, b.Problem),
			cmp.Compare(a.ItemID, b.ItemID),
			cmp.Compare(a.Detail, b.Detail),
		)
	})
	return out
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// Repair removes dangling directory items from owner's directories and
// returns the anomalies it fixed. Other anomalies are left for the caller.
func (s *Service) Repair(ctx context.Context, owner, caller string) (fixed []Anomaly, err error) {
	const op = "directory.Repair"
	defer func() { s.observe(op, err) }()

	if caller != owner {
		return nil, forbidden(op, "only %s can repair their directories", owner)
	}
	dirs, err := s.repo.ListDirectories(ctx, owner)
	if err != nil {
		return nil, err
	}

	dangling := make(map[string][]Anomaly)
	var order []string
	for _, a := range audit(dirs) {
		if a.Problem != ProblemDanglingItem {
			continue
		}
		if _, ok := dangling[a.Directory.ID]; !ok {
			order = append(order, a.Directory.ID)
		}
		dangling[a.Directory.ID] = append(dangling[a.Directory.ID], a)
	}

	for _, id := range order {
		found := dangling[id]
		ids := make([]string, len(found))
		for i, a := range found {
			ids[i] = a.ItemID
		}
		if _, err := s.removeItems(ctx, op, owner, id, caller, ids, true); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fixed, err
		}
		fixed = append(fixed, found...)
		s.logger.Info("removed dangling directory items", "owner", owner, "directoryId", id, "items", ids)
	}
	return fixed, nil
}
