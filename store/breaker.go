package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"
)

// breakerClient guards an API with a circuit breaker. Condition failures
// and validation errors are answers from a healthy table and do not count
// as failures.
type breakerClient struct {
	api API
	cb  *gobreaker.CircuitBreaker
}

var _ API = (*breakerClient)(nil)

func newBreakerClient(api API, cfg BreakerConfig, logger *slog.Logger) *breakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dynamodb",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
	})
	return &breakerClient{api: api, cb: cb}
}

// isClientError reports whether err was caused by the request rather than
// by the service.
func isClientError(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (b *breakerClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return execute(b.cb, func() (*dynamodb.GetItemOutput, error) { return b.api.GetItem(ctx, in, optFns...) })
}

func (b *breakerClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return execute(b.cb, func() (*dynamodb.PutItemOutput, error) { return b.api.PutItem(ctx, in, optFns...) })
}

func (b *breakerClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return execute(b.cb, func() (*dynamodb.UpdateItemOutput, error) { return b.api.UpdateItem(ctx, in, optFns...) })
}

func (b *breakerClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return execute(b.cb, func() (*dynamodb.DeleteItemOutput, error) { return b.api.DeleteItem(ctx, in, optFns...) })
}

func (b *breakerClient) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return execute(b.cb, func() (*dynamodb.QueryOutput, error) { return b.api.Query(ctx, in, optFns...) })
}

func (b *breakerClient) BatchExecuteStatement(ctx context.Context, in *dynamodb.BatchExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchExecuteStatementOutput, error) {
	return execute(b.cb, func() (*dynamodb.BatchExecuteStatementOutput, error) {
		return b.api.BatchExecuteStatement(ctx, in, optFns...)
	})
}
