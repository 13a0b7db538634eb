// Package crossref maintains the back-reference from game rows to the
// directories that contain them. Each game row carries a "directories"
// string set of "owner/directoryId" entries.
package crossref

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chessdojo/dirtree/directory"
)

const (
	addStatement    = `UPDATE "%s" SET "directories" = set_add("directories", ?) WHERE "cohort" = ? AND "id" = ?`
	removeStatement = `UPDATE "%s" SET "directories" = set_delete("directories", ?) WHERE "cohort" = ? AND "id" = ?`
)

// Executor runs independent PartiQL statements. *store.Store implements it.
type Executor interface {
	ExecuteStatements(ctx context.Context, statements []types.BatchStatementRequest) error
}

// Updater is the DynamoDB implementation of directory.CrossReferencer.
type Updater struct {
	exec  Executor
	table string
}

var _ directory.CrossReferencer = (*Updater)(nil)

// New returns an Updater writing to the games table.
func New(exec Executor, gameTable string) *Updater {
	return &Updater{exec: exec, table: gameTable}
}

// Ref returns the set entry recorded on a game for a directory.
func Ref(owner, directoryID string) string {
	return owner + "/" + directoryID
}

// AddDirectory adds the directory to the set of every game item.
func (u *Updater) AddDirectory(ctx context.Context, owner, directoryID string, items []directory.Item) error {
	return u.run(ctx, addStatement, owner, directoryID, items)
}

// RemoveDirectory removes the directory from the set of every game item.
func (u *Updater) RemoveDirectory(ctx context.Context, owner, directoryID string, items []directory.Item) error {
	return u.run(ctx, removeStatement, owner, directoryID, items)
}

func (u *Updater) run(ctx context.Context, template, owner, directoryID string, items []directory.Item) error {
	stmts := u.statements(template, Ref(owner, directoryID), items)
	if len(stmts) == 0 {
		return nil
	}
	if err := u.exec.ExecuteStatements(ctx, stmts); err != nil {
		return fmt.Errorf("crossref %s: %w", Ref(owner, directoryID), err)
	}
	return nil
}

func (u *Updater) statements(template, ref string, items []directory.Item) []types.BatchStatementRequest {
	query := aws.String(fmt.Sprintf(template, u.table))
	var stmts []types.BatchStatementRequest
	for _, it := range items {
		if !it.Type.IsGame() || it.Game == nil {
			continue
		}
		stmts = append(stmts, types.BatchStatementRequest{
			Statement: query,
			Parameters: []types.AttributeValue{
				&types.AttributeValueMemberSS{Value: []string{ref}},
				&types.AttributeValueMemberS{Value: it.Game.Cohort},
				&types.AttributeValueMemberS{Value: it.Game.ID},
			},
		})
	}
	return stmts
}
