// Package memstore is an in-memory directory repository. It evaluates the
// same write conditions as the DynamoDB store, records a change feed of
// deletions and keeps game back-references, so service behaviour can be
// exercised without a table.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chessdojo/dirtree/directory"
)

// Change is one entry of the change feed: the row image before and after a
// write. New is nil for deletions.
type Change struct {
	Old *directory.Directory
	New *directory.Directory
}

// Hook runs before a write is evaluated, outside the store's lock.
type Hook func(op, owner, id string)

// Store is a concurrency-safe in-memory Repository and CrossReferencer.
type Store struct {
	mu      sync.Mutex
	rows    map[directory.Key]*directory.Directory
	refs    map[string]map[string]bool
	feed    []Change
	deletes map[directory.Key]int
	faults  map[string][]error
	hook    Hook
	now     func() time.Time

	maxItems int
}

var (
	_ directory.Repository      = (*Store)(nil)
	_ directory.CrossReferencer = (*Store)(nil)
	_ directory.ItemLimiter     = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		rows:    make(map[directory.Key]*directory.Directory),
		refs:    make(map[string]map[string]bool),
		deletes: make(map[directory.Key]int),
		faults:  make(map[string][]error),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetHook installs h, replacing any previous hook. Pass nil to remove it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// FailNext makes the next call of op (a Repository method name such as
// "RemoveItems") return err without touching the data.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	s.faults[op] = append(s.faults[op], err)
	s.mu.Unlock()
}

// Seed stores dir unconditionally, for test setup.
func (s *Store) Seed(dir *directory.Directory) {
	s.mu.Lock()
	s.rows[dir.Key()] = dir.Clone()
	s.mu.Unlock()
}

// Feed returns and clears the captured deletions.
func (s *Store) Feed() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.feed
	s.feed = nil
	return out
}

// Deletes returns how many times the row with key was actually deleted.
func (s *Store) Deletes(key directory.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[key]
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Directories returns the directory keys referenced by a game.
func (s *Store) Directories(cohort, gameID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for ref := range s.refs[directory.GameItemID(cohort, gameID)] {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// begin runs the hook and pops an injected fault for op. It returns with
// the lock held unless it returns an error.
func (s *Store) begin(op, owner, id string) error {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(op, owner, id)
	}

	s.mu.Lock()
	if q := s.faults[op]; len(q) > 0 {
		err := q[0]
		s.faults[op] = q[1:]
		s.mu.Unlock()
		return err
	}
	return nil
}

func conditionFailed(op string, key directory.Key, format string, args ...any) error {
	return directory.Errorf(directory.KindConflict, "memstore."+op,
		errors.New("conditional check failed"), "%s: "+format, append([]any{key}, args...)...)
}

func (s *Store) GetDirectory(_ context.Context, owner, id string) (*directory.Directory, error) {
	if err := s.begin("GetDirectory", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	row, ok := s.rows[directory.Key{Owner: owner, ID: id}]
	if !ok {
		return nil, directory.Errorf(directory.KindNotFound, "memstore.GetDirectory", nil, "directory %s/%s not found", owner, id)
	}
	return row.Clone(), nil
}

func (s *Store) ListDirectories(_ context.Context, owner string) ([]*directory.Directory, error) {
	if err := s.begin("ListDirectories", owner, ""); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var out []*directory.Directory
	for key, row := range s.rows {
		if key.Owner == owner {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutDirectory(_ context.Context, dir *directory.Directory) error {
	if err := s.begin("PutDirectory", dir.Owner, dir.ID); err != nil {
		return err
	}
	defer s.mu.Unlock()

	key := dir.Key()
	if _, ok := s.rows[key]; ok {
		return conditionFailed("PutDirectory", key, "row already exists")
	}
	row := dir.Clone()
	if row.Version == 0 {
		row.Version = 1
	}
	s.rows[key] = row
	return nil
}

// SetMaxItemsPerUpdate makes AddItems reject batches larger than n, as
// DynamoDB does. Zero removes the limit.
func (s *Store) SetMaxItemsPerUpdate(n int) {
	s.mu.Lock()
	s.maxItems = n
	s.mu.Unlock()
}

// MaxItemsPerUpdate returns the limit set by SetMaxItemsPerUpdate.
func (s *Store) MaxItemsPerUpdate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxItems
}

func (s *Store) AddItems(_ context.Context, owner, id string, items []directory.Item, expectedVersion int64) (*directory.Directory, error) {
	if err := s.begin("AddItems", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if s.maxItems > 0 && len(items) > s.maxItems {
		return nil, directory.Errorf(directory.KindInvalidRequest, "memstore.AddItems", nil,
			"%d items per update, limit is %d", len(items), s.maxItems)
	}
	key := directory.Key{Owner: owner, ID: id}
	row, ok := s.rows[key]
	if !ok {
		return nil, conditionFailed("AddItems", key, "row does not exist")
	}
	if expectedVersion != directory.AnyVersion && row.Version != expectedVersion {
		return nil, conditionFailed("AddItems", key, "version is %d, expected %d", row.Version, expectedVersion)
	}
	for _, it := range items {
		if _, exists := row.Items[it.ID]; exists {
			return nil, conditionFailed("AddItems", key, "item %s already exists", it.ID)
		}
	}

	next := row.Clone()
	for _, it := range items {
		next.Items[it.ID] = it
		next.ItemIDs = append(next.ItemIDs, it.ID)
	}
	s.commit(next)
	return next.Clone(), nil
}

func (s *Store) RemoveItems(_ context.Context, owner, id string, removals []directory.Removal, expectedVersion int64) (*directory.Directory, error) {
	if err := s.begin("RemoveItems", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	key := directory.Key{Owner: owner, ID: id}
	row, ok := s.rows[key]
	if !ok {
		return nil, conditionFailed("RemoveItems", key, "row does not exist")
	}
	if expectedVersion != 0 {
		if row.Version != expectedVersion {
			return nil, conditionFailed("RemoveItems", key, "version is %d, expected %d", row.Version, expectedVersion)
		}
	} else {
		if row.Version != 0 {
			return nil, conditionFailed("RemoveItems", key, "row is versioned")
		}
		for _, r := range removals {
			if r.Index < 0 || r.Index >= len(row.ItemIDs) || row.ItemIDs[r.Index] != r.ItemID {
				return nil, conditionFailed("RemoveItems", key, "itemIds[%d] is not %s", r.Index, r.ItemID)
			}
		}
	}

	next := row.Clone()
	drop := make(map[int]bool, len(removals))
	for _, r := range removals {
		delete(next.Items, r.ItemID)
		drop[r.Index] = true
	}
	ids := next.ItemIDs[:0]
	for i, itemID := range next.ItemIDs {
		if !drop[i] {
			ids = append(ids, itemID)
		}
	}
	next.ItemIDs = ids
	s.commit(next)
	return next.Clone(), nil
}

func (s *Store) UpdateDirectory(_ context.Context, owner, id string, u directory.Update) (*directory.Directory, error) {
	if err := s.begin("UpdateDirectory", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	key := directory.Key{Owner: owner, ID: id}
	row, ok := s.rows[key]
	if !ok {
		return nil, conditionFailed("UpdateDirectory", key, "row does not exist")
	}
	if u.ItemIDs != nil && row.Version != u.ExpectedVersion {
		return nil, conditionFailed("UpdateDirectory", key, "version is %d, expected %d", row.Version, u.ExpectedVersion)
	}

	next := row.Clone()
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Visibility != nil {
		next.Visibility = *u.Visibility
	}
	if u.ItemIDs != nil {
		next.ItemIDs = slices.Clone(u.ItemIDs)
	}
	s.commit(next)
	return next.Clone(), nil
}

func (s *Store) UpdateItemMetadata(_ context.Context, owner, parentID string, item directory.Item) error {
	if err := s.begin("UpdateItemMetadata", owner, parentID); err != nil {
		return err
	}
	defer s.mu.Unlock()

	key := directory.Key{Owner: owner, ID: parentID}
	row, ok := s.rows[key]
	if !ok {
		return conditionFailed("UpdateItemMetadata", key, "row does not exist")
	}
	current, ok := row.Items[item.ID]
	if !ok || item.Directory == nil {
		return conditionFailed("UpdateItemMetadata", key, "item %s does not exist", item.ID)
	}

	next := row.Clone()
	current = current.Clone()
	current.Directory.Name = item.Directory.Name
	current.Directory.Visibility = item.Directory.Visibility
	current.Directory.UpdatedAt = item.Directory.UpdatedAt
	next.Items[item.ID] = current
	s.rows[key] = next
	return nil
}

func (s *Store) SetAccess(_ context.Context, owner, id string, access map[string]directory.Role) (*directory.Directory, error) {
	if err := s.begin("SetAccess", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	key := directory.Key{Owner: owner, ID: id}
	row, ok := s.rows[key]
	if !ok {
		return nil, conditionFailed("SetAccess", key, "row does not exist")
	}
	next := row.Clone()
	next.Access = make(map[string]directory.Role, len(access))
	for user, role := range access {
		next.Access[user] = role
	}
	s.commit(next)
	return next.Clone(), nil
}

func (s *Store) DeleteDirectory(_ context.Context, owner, id string) (*directory.Directory, error) {
	if err := s.begin("DeleteDirectory", owner, id); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	key := directory.Key{Owner: owner, ID: id}
	row, ok := s.rows[key]
	if !ok {
		return nil, directory.Errorf(directory.KindNotFound, "memstore.DeleteDirectory", nil, "directory %s not found", key)
	}
	delete(s.rows, key)
	s.deletes[key]++
	s.feed = append(s.feed, Change{Old: row.Clone()})
	return row.Clone(), nil
}

func (s *Store) SetParents(_ context.Context, owner string, ids []string, parent string) error {
	if err := s.begin("SetParents", owner, parent); err != nil {
		return err
	}
	defer s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		key := directory.Key{Owner: owner, ID: id}
		row, ok := s.rows[key]
		if !ok {
			errs = append(errs, conditionFailed("SetParents", key, "row does not exist"))
			continue
		}
		next := row.Clone()
		next.Parent = parent
		s.rows[key] = next
	}
	return errors.Join(errs...)
}

// AddDirectory records owner/directoryID on every game item.
func (s *Store) AddDirectory(_ context.Context, owner, directoryID string, items []directory.Item) error {
	if err := s.begin("AddDirectory", owner, directoryID); err != nil {
		return err
	}
	defer s.mu.Unlock()

	ref := owner + "/" + directoryID
	for _, it := range items {
		if !it.Type.IsGame() {
			continue
		}
		if s.refs[it.ID] == nil {
			s.refs[it.ID] = make(map[string]bool)
		}
		s.refs[it.ID][ref] = true
	}
	return nil
}

// RemoveDirectory drops owner/directoryID from every game item.
func (s *Store) RemoveDirectory(_ context.Context, owner, directoryID string, items []directory.Item) error {
	if err := s.begin("RemoveDirectory", owner, directoryID); err != nil {
		return err
	}
	defer s.mu.Unlock()

	ref := owner + "/" + directoryID
	for _, it := range items {
		delete(s.refs[it.ID], ref)
	}
	return nil
}

// commit bumps the version and timestamp of next and stores it. Callers
// hold the lock.
func (s *Store) commit(next *directory.Directory) {
	next.Version++
	next.UpdatedAt = s.now()
	s.rows[next.Key()] = next
}
