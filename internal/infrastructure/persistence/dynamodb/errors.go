package dynamodb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"chronograph-backend/internal/repository"
)

// classifyError maps AWS SDK failures onto repository error codes so the
// service layer can branch without knowing the backend.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return repository.NewRepositoryError(repository.ErrCodeOptimisticLock,
			operation+": condition failed", err)
	}

	var txCanceled *types.TransactionCanceledException
	if errors.As(err, &txCanceled) {
		for _, reason := range txCanceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return repository.NewRepositoryError(repository.ErrCodeOptimisticLock,
					operation+": transaction condition failed", err)
			}
		}
		return repository.RetryableError{
			Err:       repository.NewRepositoryError(repository.ErrCodeConflict, operation+": transaction canceled", err),
			Retryable: true,
		}
	}

	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return repository.RetryableError{
			Err:       repository.NewRepositoryError(repository.ErrCodeInternal, operation+": throughput exceeded", err),
			Retryable: true,
		}
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return repository.NewUnavailableError(operation+": table missing", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ServiceUnavailable", "InternalServerError":
			return repository.NewUnavailableError(operation+": service unavailable", err)
		case "ThrottlingException", "RequestLimitExceeded":
			return repository.RetryableError{
				Err:       repository.NewRepositoryError(repository.ErrCodeInternal, operation+": throttled", err),
				Retryable: true,
			}
		}
	}

	return repository.NewRepositoryError(repository.ErrCodeInternal, operation+" failed", err)
}
