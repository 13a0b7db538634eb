package store

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"

	"github.com/chessdojo/dirtree/directory"
)

// retryableCodes are DynamoDB error codes for which a retry can succeed.
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"LimitExceededException":                 true,
	"TransactionInProgressException":         true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
}

// mapError translates a DynamoDB client error into a *directory.Error.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return directory.Errorf(directory.KindConflict, op, err, "condition failed")
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return directory.Errorf(directory.KindTransient, op, err, "dynamodb circuit open")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch {
		case retryableCodes[apiErr.ErrorCode()], apiErr.ErrorFault() == smithy.FaultServer:
			return directory.Errorf(directory.KindTransient, op, err, "dynamodb %s", apiErr.ErrorCode())
		case apiErr.ErrorCode() == "ValidationException":
			return directory.Errorf(directory.KindInvalidRequest, op, err, "rejected by dynamodb")
		}
	}

	return directory.Errorf(directory.KindTransient, op, err, "dynamodb request failed")
}

// statementError maps the per-statement error of a BatchExecuteStatement
// response. It returns nil when the statement succeeded.
func statementError(op string, resp types.BatchStatementResponse) error {
	if resp.Error == nil {
		return nil
	}
	msg := ""
	if resp.Error.Message != nil {
		msg = *resp.Error.Message
	}
	switch resp.Error.Code {
	case types.BatchStatementErrorCodeEnumConditionalCheckFailed:
		return directory.Errorf(directory.KindConflict, op, nil, "statement condition failed: %s", msg)
	case types.BatchStatementErrorCodeEnumValidationError:
		return directory.Errorf(directory.KindInvalidRequest, op, nil, "statement rejected: %s", msg)
	case types.BatchStatementErrorCodeEnumResourceNotFound:
		return directory.Errorf(directory.KindNotFound, op, nil, "statement target missing: %s", msg)
	default:
		return directory.Errorf(directory.KindTransient, op, nil, "statement failed (%s): %s", resp.Error.Code, msg)
	}
}
