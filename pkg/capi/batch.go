package capi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultBatchConcurrency bounds parallel provisioning when none is given.
const DefaultBatchConcurrency = 5

// ErrBatchFailed is returned by BatchErrors when at least one operation failed.
var ErrBatchFailed = errors.New("batch provisioning failed")

// BatchOperation is one provisioning request in a batch.
type BatchOperation struct {
	ID       string
	Request  *ServiceProvisionRequest
	Callback func(result *BatchResult)
}

// BatchResult represents the result of a batch operation.
type BatchResult struct {
	ID       string           `json:"id"               yaml:"id"`
	Success  bool             `json:"success"          yaml:"success"`
	Result   *ProvisionResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error    error            `json:"-"                yaml:"-"`
	Message  string           `json:"error,omitempty"  yaml:"error,omitempty"`
	Duration time.Duration    `json:"duration"         yaml:"duration"`
}

// BatchExecutor provisions several service instances with bounded concurrency.
// Operations are independent; one failure does not stop the others.
type BatchExecutor struct {
	provisioner ServiceProvisioner
	concurrency int
	timeout     time.Duration
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(provisioner ServiceProvisioner, concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	return &BatchExecutor{
		provisioner: provisioner,
		concurrency: concurrency,
	}
}

// SetTimeout bounds each operation. Zero leaves only the caller's deadline.
func (b *BatchExecutor) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// Execute runs every operation and returns results in input order.
func (b *BatchExecutor) Execute(ctx context.Context, operations []BatchOperation) []BatchResult {
	results := make([]BatchResult, len(operations))

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, b.concurrency)

	for index, operation := range operations {
		waitGroup.Add(1)

		go func(index int, operation BatchOperation) {
			defer waitGroup.Done()

			// Acquire semaphore
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			opCtx := ctx

			if b.timeout > 0 {
				var cancel context.CancelFunc

				opCtx, cancel = context.WithTimeout(ctx, b.timeout)
				defer cancel()
			}

			start := time.Now()
			result := b.executeOperation(opCtx, operation)
			result.Duration = time.Since(start)
			results[index] = *result

			if operation.Callback != nil {
				operation.Callback(result)
			}
		}(index, operation)
	}

	waitGroup.Wait()

	return results
}

func (b *BatchExecutor) executeOperation(ctx context.Context, operation BatchOperation) *BatchResult {
	result := &BatchResult{ID: operation.ID}

	provisioned, err := b.provisioner.Provision(ctx, operation.Request)
	if err != nil {
		result.Error = err
		result.Message = err.Error()

		return result
	}

	result.Success = true
	result.Result = provisioned

	return result
}

// BatchErrors joins the failures of results, or returns nil when all succeeded.
func BatchErrors(results []BatchResult) error {
	var errs []error

	for _, result := range results {
		if !result.Success {
			errs = append(errs, fmt.Errorf("%s: %w", result.ID, result.Error))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrBatchFailed, errors.Join(errs...))
}
