package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chessdojo/dirtree/directory"
)

// API is the subset of the DynamoDB client used by the Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchExecuteStatement(ctx context.Context, params *dynamodb.BatchExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchExecuteStatementOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Store is the DynamoDB implementation of directory.Repository.
type Store struct {
	client API
	config Config
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ directory.Repository  = (*Store)(nil)
	_ directory.ItemLimiter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for breaker state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the clock used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Store instance.
func New(client API, config Config, opts ...Option) *Store {
	config.validate()
	s := &Store{
		client: client,
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if config.Breaker.Enabled {
		s.client = newBreakerClient(client, config.Breaker, s.logger)
	}
	return s
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

func (s *Store) table() *string {
	return aws.String(s.config.DirectoryTable)
}

func (s *Store) key(owner, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrOwner: stringValue(owner),
		attrID:    stringValue(id),
	}
}

func (s *Store) stamp() string {
	return formatTime(s.now())
}

func decode(op string, item map[string]types.AttributeValue) (*directory.Directory, error) {
	d, err := UnmarshalDirectory(item)
	if err != nil {
		return nil, directory.Errorf(directory.KindFatal, op, err, "malformed directory row")
	}
	return d, nil
}

func notFound(op, owner, id string) error {
	return directory.Errorf(directory.KindNotFound, op, nil, "directory %s/%s not found", owner, id)
}

// GetDirectory reads a directory with a strongly consistent read, so that
// list positions computed from it match the stored row.
func (s *Store) GetDirectory(ctx context.Context, owner, id string) (*directory.Directory, error) {
	const op = "store.GetDirectory"
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table(),
		Key:            s.key(owner, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError(op, err)
	}
	if out.Item == nil {
		return nil, notFound(op, owner, id)
	}
	return decode(op, out.Item)
}

// ListDirectories queries every row of owner, following pagination. When
// OwnerIndex is set the index must project all attributes.
func (s *Store) ListDirectories(ctx context.Context, owner string) ([]*directory.Directory, error) {
	const op = "store.ListDirectories"
	keyEx := expression.Key(attrOwner).Equal(expression.Value(owner))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, directory.Errorf(directory.KindInvalidRequest, op, err, "build key condition")
	}

	input := &dynamodb.QueryInput{
		TableName:                 s.table(),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if s.config.OwnerIndex != "" {
		input.IndexName = aws.String(s.config.OwnerIndex)
	}

	var dirs []*directory.Directory
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(op, err)
		}
		for _, item := range page.Items {
			d, err := decode(op, item)
			if err != nil {
				return nil, err
			}
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

// PutDirectory inserts dir unless a row with its key exists.
func (s *Store) PutDirectory(ctx context.Context, dir *directory.Directory) error {
	const op = "store.PutDirectory"
	item, err := MarshalDirectory(dir)
	if err != nil {
		return directory.Errorf(directory.KindInvalidRequest, op, err, "encode %s", dir.Key())
	}

	cond := expression.Name(attrID).AttributeNotExists()
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return directory.Errorf(directory.KindInvalidRequest, op, err, "build condition")
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 s.table(),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return mapError(op, err)
}

// MaxItemsPerUpdate is the largest batch AddItems accepts.
func (s *Store) MaxItemsPerUpdate() int { return maxItemsPerUpdate }

// AddItems writes items into the items map and appends their ids to
// itemIds in one update. The update requires the row to exist and every
// item key to be absent, so a replayed batch fails with KindConflict.
// Unless expectedVersion is directory.AnyVersion the row must also be at
// that version.
func (s *Store) AddItems(ctx context.Context, owner, id string, items []directory.Item, expectedVersion int64) (*directory.Directory, error) {
	const op = "store.AddItems"
	if len(items) == 0 || len(items) > maxItemsPerUpdate {
		return nil, directory.Errorf(directory.KindInvalidRequest, op, nil,
			"%d items per update, want 1 to %d", len(items), maxItemsPerUpdate)
	}

	e := newUpdateExpr()
	e.exists()
	if expectedVersion != directory.AnyVersion {
		e.expectVersion(expectedVersion)
	}
	ids := make([]string, len(items))
	for i, it := range items {
		av, err := marshalItem(it)
		if err != nil {
			return nil, directory.Errorf(directory.KindInvalidRequest, op, err, "encode item")
		}
		k := e.name("k", i, it.ID)
		e.set("#i.%s = %s", k, e.value(":a"+strconv.Itoa(i), av))
		e.cond("attribute_not_exists(#i.%s)", k)
		ids[i] = it.ID
	}
	e.set("#n = list_append(if_not_exists(#n, %s), %s)",
		e.value(":empty", &types.AttributeValueMemberL{Value: []types.AttributeValue{}}),
		e.value(":ids", stringList(ids)))
	e.touch(s.stamp(), true)

	return s.update(ctx, op, owner, id, e)
}

// RemoveItems drops items from the items map and their positions from
// itemIds. Versioned rows are guarded by expectedVersion; rows written
// before versioning are guarded by asserting each list position.
func (s *Store) RemoveItems(ctx context.Context, owner, id string, removals []directory.Removal, expectedVersion int64) (*directory.Directory, error) {
	const op = "store.RemoveItems"
	if len(removals) == 0 {
		return nil, directory.Errorf(directory.KindInvalidRequest, op, nil, "no items to remove")
	}

	e := newUpdateExpr()
	e.exists()
	e.expectVersion(expectedVersion)
	for i, r := range removals {
		if r.Index < 0 {
			return nil, directory.Errorf(directory.KindInvalidRequest, op, nil, "item %s has no position", r.ItemID)
		}
		k := e.name("k", i, r.ItemID)
		e.remove("#i.%s", k)
		e.remove("#n[%d]", r.Index)
		if expectedVersion == 0 {
			e.cond("#n[%d] = %s", r.Index, e.value(":r"+strconv.Itoa(i), stringValue(r.ItemID)))
		}
	}
	e.touch(s.stamp(), true)

	return s.update(ctx, op, owner, id, e)
}

// UpdateDirectory applies a rename, visibility change or reorder. A
// reorder is additionally conditioned on the version it was computed from.
func (s *Store) UpdateDirectory(ctx context.Context, owner, id string, u directory.Update) (*directory.Directory, error) {
	const op = "store.UpdateDirectory"
	update := expression.Set(expression.Name(attrUpdatedAt), expression.Value(s.stamp())).
		Set(expression.Name(attrVersion), versionBump())
	if u.Name != nil {
		update = update.Set(expression.Name("name"), expression.Value(*u.Name))
	}
	if u.Visibility != nil {
		update = update.Set(expression.Name("visibility"), expression.Value(string(*u.Visibility)))
	}

	cond := expression.Name(attrID).AttributeExists()
	if u.ItemIDs != nil {
		update = update.Set(expression.Name(attrItemIDs), expression.Value(u.ItemIDs))
		if u.ExpectedVersion == 0 {
			cond = cond.And(expression.Name(attrVersion).AttributeNotExists())
		} else {
			cond = cond.And(expression.Name(attrVersion).Equal(expression.Value(u.ExpectedVersion)))
		}
	}

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return nil, directory.Errorf(directory.KindInvalidRequest, op, err, "build update")
	}
	return s.updateBuilt(ctx, op, owner, id, expr)
}

// UpdateItemMetadata refreshes the cached name, visibility and timestamp of
// a directory item inside its parent. The parent's version is left alone:
// the write changes no structure.
func (s *Store) UpdateItemMetadata(ctx context.Context, owner, parentID string, item directory.Item) error {
	const op = "store.UpdateItemMetadata"
	if item.Directory == nil {
		return directory.Errorf(directory.KindInvalidRequest, op, nil, "item %s is not a directory", item.ID)
	}

	e := newUpdateExpr()
	e.exists()
	k := e.name("k", 0, item.ID)
	e.names["#m"] = "metadata"
	e.names["#nm"] = "name"
	e.names["#vis"] = "visibility"
	e.cond("attribute_exists(#i.%s)", k)
	e.set("#i.%s.#m.#nm = %s", k, e.value(":name", stringValue(item.Directory.Name)))
	e.set("#i.%s.#m.#vis = %s", k, e.value(":vis", stringValue(string(item.Directory.Visibility))))
	e.set("#i.%s.#m.#u = %s", k, e.value(":mu", stringValue(formatTime(item.Directory.UpdatedAt))))

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.table(),
		Key:                       s.key(owner, parentID),
		UpdateExpression:          aws.String(e.update()),
		ConditionExpression:       aws.String(e.condition()),
		ExpressionAttributeNames:  e.usedNames(),
		ExpressionAttributeValues: e.usedValues(),
	})
	return mapError(op, err)
}

// SetAccess overwrites the access map.
func (s *Store) SetAccess(ctx context.Context, owner, id string, access map[string]directory.Role) (*directory.Directory, error) {
	const op = "store.SetAccess"
	update := expression.Set(expression.Name(attrAccess), expression.Value(accessRecord(access))).
		Set(expression.Name(attrUpdatedAt), expression.Value(s.stamp())).
		Set(expression.Name(attrVersion), versionBump())
	cond := expression.Name(attrID).AttributeExists()

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return nil, directory.Errorf(directory.KindInvalidRequest, op, err, "build update")
	}
	return s.updateBuilt(ctx, op, owner, id, expr)
}

// DeleteDirectory removes the row unconditionally and returns its prior
// image. Children are left to the cascade deleter.
func (s *Store) DeleteDirectory(ctx context.Context, owner, id string) (*directory.Directory, error) {
	const op = "store.DeleteDirectory"
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    s.table(),
		Key:          s.key(owner, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, mapError(op, err)
	}
	if len(out.Attributes) == 0 {
		return nil, notFound(op, owner, id)
	}
	return decode(op, out.Attributes)
}

// SetParents rewrites the parent pointer of each directory with one PartiQL
// statement per row. Statements are not conditioned; the last writer wins.
func (s *Store) SetParents(ctx context.Context, owner string, ids []string, parent string) error {
	stmts := make([]types.BatchStatementRequest, 0, len(ids))
	query := fmt.Sprintf(`UPDATE "%s" SET "%s" = ? WHERE "%s" = ? AND "%s" = ?`,
		s.config.DirectoryTable, attrParent, attrOwner, attrID)
	for _, id := range ids {
		stmts = append(stmts, types.BatchStatementRequest{
			Statement:  aws.String(query),
			Parameters: []types.AttributeValue{stringValue(parent), stringValue(owner), stringValue(id)},
		})
	}
	return s.ExecuteStatements(ctx, stmts)
}

func versionBump() expression.SetValueBuilder {
	return expression.Plus(
		expression.IfNotExists(expression.Name(attrVersion), expression.Value(0)),
		expression.Value(1),
	)
}

func (s *Store) update(ctx context.Context, op, owner, id string, e *updateExpr) (*directory.Directory, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.table(),
		Key:                       s.key(owner, id),
		UpdateExpression:          aws.String(e.update()),
		ConditionExpression:       aws.String(e.condition()),
		ExpressionAttributeNames:  e.usedNames(),
		ExpressionAttributeValues: e.usedValues(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, mapError(op, err)
	}
	return decode(op, out.Attributes)
}

func (s *Store) updateBuilt(ctx context.Context, op, owner, id string, expr expression.Expression) (*directory.Directory, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.table(),
		Key:                       s.key(owner, id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, mapError(op, err)
	}
	return decode(op, out.Attributes)
}
