package directory_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessdojo/dirtree/directory"
	"github.com/chessdojo/dirtree/internal/memstore"
)

func TestAddItems_BatchesLargeRequests(t *testing.T) {
	cfg := directory.DefaultConfig()
	cfg.AddBatchSize = 200
	f := newFixture(t, cfg)
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	var writes []int
	f.ms.SetHook(func(op, owner, id string) {
		if op == "AddItems" {
			writes = append(writes, 0)
		}
	})

	got, err := f.svc.AddItems(context.Background(), directory.AddItemsRequest{
		Owner:  "alice",
		ID:     dir.ID,
		Caller: "alice",
		Games:  games(250),
	})
	require.NoError(t, err)

	assert.Len(t, writes, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Batches.WithLabelValues("directory.AddItems")))
	assert.Len(t, got.ItemIDs, 250)
	assert.Len(t, got.Items, 250)
	assert.Equal(t, gameID("g000"), got.ItemIDs[0])
	assert.Equal(t, gameID("g199"), got.ItemIDs[199])
	assert.Equal(t, gameID("g249"), got.ItemIDs[249])
	f.assertInvariants(t, "alice")
}

func TestAddItems_BatchSizeCappedByRepository(t *testing.T) {
	ms := memstore.New()
	ms.SetMaxItemsPerUpdate(100)
	cfg := directory.DefaultConfig()
	cfg.AddBatchSize = 200
	svc := directory.New(ms, ms, cfg)

	dir, _, err := svc.Create(context.Background(), directory.CreateRequest{
		Owner: "alice", Parent: directory.HomeID, Name: "Games", Visibility: directory.Public, Caller: "alice",
	})
	require.NoError(t, err)

	var writes int
	ms.SetHook(func(op, owner, id string) {
		if op == "AddItems" {
			writes++
		}
	})

	got, err := svc.AddItems(context.Background(), directory.AddItemsRequest{
		Owner:  "alice",
		ID:     dir.ID,
		Caller: "alice",
		Games:  games(250),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, writes)
	assert.Len(t, got.ItemIDs, 250)
}

func TestAddItems_ReplayConflicts(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	req := directory.AddItemsRequest{
		Owner:  "alice",
		ID:     dir.ID,
		Caller: "alice",
		Games:  games(3),
	}

	_, err := f.svc.AddItems(context.Background(), req)
	require.NoError(t, err)
	before := f.get(t, "alice", dir.ID)

	_, err = f.svc.AddItems(context.Background(), req)
	assert.ErrorIs(t, err, directory.ErrConflict)

	after := f.get(t, "alice", dir.ID)
	assert.Equal(t, before.ItemIDs, after.ItemIDs)
	assert.Equal(t, before.Version, after.Version)
}

func TestAddItems_ItemTypes(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	got := f.addGames(t, "alice", dir.ID, "alice",
		directory.GameMetadata{Cohort: "1200-1300", ID: "own", Owner: "alice"},
		directory.GameMetadata{Cohort: "1200-1300", ID: "dojo", Owner: "bob"},
		directory.GameMetadata{Cohort: directory.MastersCohort, ID: "m1", Owner: "magnus"},
	)

	assert.Equal(t, directory.ItemTypeOwnedGame, got.Items["1200-1300/own"].Type)
	assert.Equal(t, directory.ItemTypeDojoGame, got.Items["1200-1300/dojo"].Type)
	assert.Equal(t, directory.ItemTypeMasterGame, got.Items["masters/m1"].Type)
	assert.Equal(t, "alice", got.Items["masters/m1"].AddedBy)
}

func TestAddItems_RecordsBackReferences(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	f.addGames(t, "alice", dir.ID, "alice", game("g1"))

	assert.Equal(t, []string{"alice/" + dir.ID}, f.ms.Directories("1200-1300", "g1"))
}

func TestAddItems_Validation(t *testing.T) {
	cfg := directory.DefaultConfig()
	cfg.MaxBatchItems = 5
	f := newFixture(t, cfg)
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	tests := []struct {
		name  string
		games []directory.GameMetadata
	}{
		{"no games", nil},
		{"empty games", []directory.GameMetadata{}},
		{"missing cohort", []directory.GameMetadata{{ID: "g1"}}},
		{"missing id", []directory.GameMetadata{{Cohort: "1200-1300"}}},
		{"duplicate", []directory.GameMetadata{game("g1"), game("g1")}},
		{"too many", games(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItems(context.Background(), directory.AddItemsRequest{
				Owner:  "alice",
				ID:     dir.ID,
				Caller: "alice",
				Games:  tt.games,
			})
			assert.ErrorIs(t, err, directory.ErrInvalidRequest)
		})
	}
	assert.Empty(t, f.get(t, "alice", dir.ID).Items)
}

func TestAddItems_Permissions(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	f.share(t, "alice", dir.ID, map[string]directory.Role{
		"bob":   directory.RoleViewer,
		"carol": directory.RoleEditor,
	})

	for _, caller := range []string{"bob", "dave"} {
		_, err := f.svc.AddItems(context.Background(), directory.AddItemsRequest{
			Owner: "alice", ID: dir.ID, Caller: caller, Games: games(1),
		})
		assert.ErrorIs(t, err, directory.ErrForbidden, caller)
	}

	got := f.addGames(t, "alice", dir.ID, "carol", game("g1"))
	assert.Equal(t, "carol", got.Items[gameID("g1")].AddedBy)
}

func TestAddItems_MissingDirectory(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())

	_, err := f.svc.AddItems(context.Background(), directory.AddItemsRequest{
		Owner: "alice", ID: "nope", Caller: "alice", Games: games(1),
	})
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestAddItems_PartialFailureKeepsEarlierBatches(t *testing.T) {
	cfg := directory.DefaultConfig()
	cfg.AddBatchSize = 2
	f := newFixture(t, cfg)
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	calls := 0
	f.ms.SetHook(func(op, owner, id string) {
		if op != "AddItems" {
			return
		}
		calls++
		if calls == 2 {
			f.ms.FailNext("AddItems", directory.Errorf(directory.KindTransient, "test", nil, "throttled"))
		}
	})

	_, err := f.svc.AddItems(context.Background(), directory.AddItemsRequest{
		Owner: "alice", ID: dir.ID, Caller: "alice", Games: games(5),
	})
	require.ErrorIs(t, err, directory.ErrTransient)

	got := f.get(t, "alice", dir.ID)
	assert.Equal(t, []string{gameID("g000"), gameID("g001")}, got.ItemIDs)
	f.assertInvariants(t, "alice")
}

func TestRemoveItems(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	f.addGames(t, "alice", dir.ID, "alice", games(4)...)

	got, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      dir.ID,
		Caller:  "alice",
		ItemIDs: []string{gameID("g001"), gameID("g003")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{gameID("g000"), gameID("g002")}, got.ItemIDs)
	assert.Len(t, got.Items, 2)
	assert.Empty(t, f.ms.Directories("1200-1300", "g001"))
	assert.NotEmpty(t, f.ms.Directories("1200-1300", "g000"))
	f.assertInvariants(t, "alice")
}

func TestRemoveItems_MissingItemsAreSkipped(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	before := f.addGames(t, "alice", dir.ID, "alice", games(2)...)

	got, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      dir.ID,
		Caller:  "alice",
		ItemIDs: []string{"1200-1300/unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, before.ItemIDs, got.ItemIDs)
	assert.Equal(t, before.Version, f.get(t, "alice", dir.ID).Version, "nothing written")
}

func TestRemoveItems_Batches(t *testing.T) {
	cfg := directory.DefaultConfig()
	cfg.RemoveBatchSize = 2
	f := newFixture(t, cfg)
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	f.addGames(t, "alice", dir.ID, "alice", games(6)...)

	got, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      dir.ID,
		Caller:  "alice",
		ItemIDs: []string{gameID("g005"), gameID("g000"), gameID("g002"), gameID("g003"), gameID("g000")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{gameID("g001"), gameID("g004")}, got.ItemIDs)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Batches.WithLabelValues("directory.RemoveItems")))
	f.assertInvariants(t, "alice")
}

func TestRemoveItems_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	read := f.addGames(t, "alice", dir.ID, "alice", games(3)...)

	// another writer shifts itemIds between our read and our write
	f.ms.SetHook(func(op, owner, id string) {
		if op == "RemoveItems" {
			f.ms.SetHook(nil)
			_, err := f.ms.RemoveItems(context.Background(), owner, id,
				[]directory.Removal{{ItemID: gameID("g000"), Index: 0}}, read.Version)
			require.NoError(t, err)
		}
	})

	_, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      dir.ID,
		Caller:  "alice",
		ItemIDs: []string{gameID("g002")},
	})
	assert.ErrorIs(t, err, directory.ErrConflict)

	got := f.get(t, "alice", dir.ID)
	assert.Equal(t, []string{gameID("g001"), gameID("g002")}, got.ItemIDs, "only the other writer's change applied")
}

func TestRemoveItems_LegacyRowUsesPositions(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	legacy := directory.NewDirectory("alice", directory.HomeID, "Old", directory.Public, t0)
	legacy.Version = 0
	for _, g := range games(3) {
		it := directory.NewGameItem(g, "alice", "alice")
		legacy.Items[it.ID] = it
		legacy.ItemIDs = append(legacy.ItemIDs, it.ID)
	}
	f.ms.Seed(legacy)

	got, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      legacy.ID,
		Caller:  "alice",
		ItemIDs: []string{gameID("g001")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{gameID("g000"), gameID("g002")}, got.ItemIDs)
	assert.Equal(t, int64(1), got.Version, "first write versions the row")
}

func TestRemoveItems_EditorCannotRemoveOthersItems(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	f.share(t, "alice", dir.ID, map[string]directory.Role{
		"bob":   directory.RoleEditor,
		"carol": directory.RoleAdmin,
	})
	f.addGames(t, "alice", dir.ID, "alice", game("by-alice"))
	f.addGames(t, "alice", dir.ID, "bob", game("by-bob"))
	before := f.get(t, "alice", dir.ID)

	_, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner:   "alice",
		ID:      dir.ID,
		Caller:  "bob",
		ItemIDs: []string{gameID("by-bob"), gameID("by-alice")},
	})
	assert.ErrorIs(t, err, directory.ErrForbidden)
	after := f.get(t, "alice", dir.ID)
	assert.Equal(t, before.ItemIDs, after.ItemIDs)
	assert.Equal(t, before.Version, after.Version)

	_, err = f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner: "alice", ID: dir.ID, Caller: "bob", ItemIDs: []string{gameID("by-bob")},
	})
	require.NoError(t, err)

	got, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner: "alice", ID: dir.ID, Caller: "carol", ItemIDs: []string{gameID("by-alice")},
	})
	require.NoError(t, err, "admins remove any item")
	assert.Empty(t, got.ItemIDs)
}

func TestRemoveItems_RejectsSubdirectories(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	_, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
		Owner: "alice", ID: directory.HomeID, Caller: "alice", ItemIDs: []string{dir.ID},
	})
	assert.ErrorIs(t, err, directory.ErrInvalidRequest)
	assert.Contains(t, f.get(t, "alice", directory.HomeID).Items, dir.ID)
}

func TestRemoveItems_Validation(t *testing.T) {
	cfg := directory.DefaultConfig()
	cfg.MaxBatchItems = 2
	f := newFixture(t, cfg)
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	for name, ids := range map[string][]string{
		"none":     nil,
		"empty id": {""},
		"too many": {"a", "b", "c"},
	} {
		_, err := f.svc.RemoveItems(context.Background(), directory.RemoveItemsRequest{
			Owner: "alice", ID: dir.ID, Caller: "alice", ItemIDs: ids,
		})
		assert.ErrorIs(t, err, directory.ErrInvalidRequest, name)
	}
}

func TestDeleteAndDetach(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)

	old, err := f.svc.Delete(context.Background(), "alice", dir.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, dir.ID, old.ID)

	feed := f.ms.Feed()
	require.Len(t, feed, 1)
	assert.Equal(t, dir.ID, feed[0].Old.ID)

	// the parent still lists it until detached
	assert.Contains(t, f.get(t, "alice", directory.HomeID).Items, dir.ID)

	home, err := f.svc.DetachDirectory(context.Background(), "alice", directory.HomeID, dir.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, home.Items)
	assert.Empty(t, home.ItemIDs)

	_, err = f.svc.Delete(context.Background(), "alice", dir.ID, "alice")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDelete_Rules(t *testing.T) {
	f := newFixture(t, directory.DefaultConfig())
	dir := f.mkdir(t, "alice", directory.HomeID, "Games", directory.Public)
	f.share(t, "alice", dir.ID, map[string]directory.Role{"bob": directory.RoleAdmin})

	_, err := f.svc.Delete(context.Background(), "alice", dir.ID, "bob")
	assert.ErrorIs(t, err, directory.ErrForbidden, "admins cannot delete")

	for _, id := range []string{directory.HomeID, directory.SharedID} {
		_, err = f.svc.Delete(context.Background(), "alice", id, "alice")
		assert.ErrorIs(t, err, directory.ErrInvalidRequest, id)
	}

	_, err = f.svc.Delete(context.Background(), "", dir.ID, "")
	assert.ErrorIs(t, err, directory.ErrInvalidRequest)
	assert.Empty(t, f.ms.Feed())
}
