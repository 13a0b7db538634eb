package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxStatementBatch is the BatchExecuteStatement limit.
const maxStatementBatch = 25

// ExecuteStatements runs PartiQL statements in batches of
// Config.StatementBatchSize. Statements are independent: a failed statement
// or batch does not stop the rest. The returned error joins every failure.
func (s *Store) ExecuteStatements(ctx context.Context, statements []types.BatchStatementRequest) error {
	const op = "store.ExecuteStatements"
	var errs []error
	for chunk := range slices.Chunk(statements, s.config.StatementBatchSize) {
		out, err := s.client.BatchExecuteStatement(ctx, &dynamodb.BatchExecuteStatementInput{
			Statements: chunk,
		})
		if err != nil {
			errs = append(errs, mapError(op, err))
			continue
		}
		for i, resp := range out.Responses {
			if err := statementError(op, resp); err != nil {
				stmt := ""
				if i < len(chunk) {
					stmt = aws.ToString(chunk[i].Statement)
				}
				errs = append(errs, fmt.Errorf("%s: %w", stmt, err))
			}
		}
	}
	return errors.Join(errs...)
}
