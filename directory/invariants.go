package directory

import (
	"errors"
	"fmt"
)

// CheckInvariants reports every per-row invariant d violates. Cross-row
// invariants (child rows exist with a matching parent) are checked by Audit.
func CheckInvariants(d *Directory) error {
	var errs []error

	if len(d.ItemIDs) != len(d.Items) {
		errs = append(errs, fmt.Errorf("itemIds has %d entries, items has %d", len(d.ItemIDs), len(d.Items)))
	}
	seen := make(map[string]bool, len(d.ItemIDs))
	for _, id := range d.ItemIDs {
		if seen[id] {
			errs = append(errs, fmt.Errorf("itemIds repeats %s", id))
		}
		seen[id] = true
		if _, ok := d.Items[id]; !ok {
			errs = append(errs, fmt.Errorf("itemIds entry %s has no item", id))
		}
	}
	for id := range d.Items {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("item %s missing from itemIds", id))
		}
	}

	names := make(map[string]string)
	for id, it := range d.Items {
		if it.ID != id {
			errs = append(errs, fmt.Errorf("item stored under %s has id %s", id, it.ID))
		}
		if err := it.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if it.Type != ItemTypeDirectory {
			continue
		}
		if other, ok := names[it.Directory.Name]; ok {
			errs = append(errs, fmt.Errorf("subdirectories %s and %s share name %q", other, id, it.Directory.Name))
		}
		names[it.Directory.Name] = id
	}

	if d.ID == HomeID && d.Parent != NoParent {
		errs = append(errs, fmt.Errorf("root directory has parent %q", d.Parent))
	}
	if _, ok := d.Access[d.Owner]; ok {
		errs = append(errs, fmt.Errorf("access map contains owner %s", d.Owner))
	}
	return errors.Join(errs...)
}
