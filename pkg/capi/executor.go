package capi

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
)

// Attempt outcomes reported to metrics.
const (
	outcomeSuccess        = "success"
	outcomeIgnored        = "ignored"
	outcomeStatusError    = "status_error"
	outcomeTransportError = "transport_error"
	outcomeError          = "error"
)

// RetryConfig controls how connection failures are retried.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// WaitMin is the first wait. When equal to WaitMax the wait is fixed.
	WaitMin time.Duration
	// WaitMax caps the exponential wait.
	WaitMax time.Duration
	// Multiplier grows the wait between consecutive retries.
	Multiplier float64
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: constants.DefaultRetryMax,
		WaitMin:    constants.DefaultRetryWaitMin,
		WaitMax:    constants.DefaultRetryWaitMax,
		Multiplier: constants.ExponentialBackoffBase,
	}
}

// RetryConfigFromConfig derives the executor settings from a client Config.
// RetryMax zero keeps the default, a negative value disables retries.
func RetryConfigFromConfig(config *Config) *RetryConfig {
	retry := DefaultRetryConfig()
	if config == nil {
		return retry
	}

	switch {
	case config.RetryMax < 0:
		retry.MaxRetries = 0
	case config.RetryMax > 0:
		retry.MaxRetries = config.RetryMax
	}

	if config.RetryWaitMin > 0 {
		retry.WaitMin = config.RetryWaitMin
	}

	if config.RetryWaitMax > 0 {
		retry.WaitMax = config.RetryWaitMax
	}

	if retry.WaitMax < retry.WaitMin {
		retry.WaitMax = retry.WaitMin
	}

	return retry
}

// Executor runs remote operations, retrying connection failures and
// translating status failures into DomainError.
type Executor struct {
	config     *RetryConfig
	translator *ErrorTranslator
	logger     Logger
	metrics    *Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger used for retry warnings and translation.
func WithExecutorLogger(logger Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = loggerOrNoop(logger)
		e.translator = NewErrorTranslator(logger)
	}
}

// WithExecutorMetrics sets the metrics sink.
func WithExecutorMetrics(metrics *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// NewExecutor creates an executor. A nil config uses DefaultRetryConfig.
func NewExecutor(config *RetryConfig, opts ...ExecutorOption) *Executor {
	if config == nil {
		config = DefaultRetryConfig()
	}

	executor := &Executor{
		config:     config,
		translator: NewErrorTranslator(nil),
		logger:     noopLogger{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs op. A status failure whose code is in ignoreStatuses ends the
// call with a nil error. Any other status failure is translated and returned
// without retrying. Only *TransportError is retried, up to MaxRetries times.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error, ignoreStatuses ...int) error {
	_, err := ExecuteValue(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, ignoreStatuses...)

	return err
}

// ExecuteValue is Execute for operations that produce a value. An ignored
// status yields the zero value of T.
func ExecuteValue[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), ignoreStatuses ...int) (T, error) {
	var (
		result  T
		ignored bool
		attempt int
	)

	operation := func() error {
		attempt++

		value, err := op(ctx)
		if err == nil {
			result = value

			e.metrics.ObserveAttempt(outcomeSuccess)

			return nil
		}

		return e.classify(err, attempt, &ignored, ignoreStatuses)
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.ObserveRetry()
		e.logger.Warn("retrying after connection failure", map[string]interface{}{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	err := backoff.RetryNotify(operation, e.newBackOff(ctx), notify)
	if err != nil || ignored {
		var zero T

		return zero, err
	}

	return result, nil
}

func (e *Executor) classify(err error, attempt int, ignored *bool, ignoreStatuses []int) error {
	statusErr := &StatusError{}
	if errors.As(err, &statusErr) {
		if containsStatus(ignoreStatuses, statusErr.StatusCode) {
			e.ignore(statusErr.StatusCode, ignored)

			return nil
		}

		e.metrics.ObserveAttempt(outcomeStatusError)

		return backoff.Permanent(e.translator.TranslateStatus(statusErr))
	}

	domainErr := &DomainError{}
	if errors.As(err, &domainErr) {
		if containsStatus(ignoreStatuses, domainErr.StatusCode) {
			e.ignore(domainErr.StatusCode, ignored)

			return nil
		}

		e.metrics.ObserveAttempt(outcomeStatusError)

		return backoff.Permanent(err)
	}

	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		e.metrics.ObserveAttempt(outcomeTransportError)

		if attempt > e.config.MaxRetries {
			e.logger.Error("giving up after connection failures", map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			})
		}

		return err
	}

	e.metrics.ObserveAttempt(outcomeError)

	return backoff.Permanent(err)
}

func (e *Executor) ignore(status int, ignored *bool) {
	*ignored = true

	e.metrics.ObserveAttempt(outcomeIgnored)
	e.logger.Debug("ignoring status failure", map[string]interface{}{
		"status": status,
	})
}

func (e *Executor) newBackOff(ctx context.Context) backoff.BackOff {
	var policy backoff.BackOff

	if e.config.WaitMin == e.config.WaitMax {
		policy = backoff.NewConstantBackOff(e.config.WaitMin)
	} else {
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = e.config.WaitMin
		exponential.MaxInterval = e.config.WaitMax
		exponential.MaxElapsedTime = 0

		if e.config.Multiplier > 0 {
			exponential.Multiplier = e.config.Multiplier
		}

		policy = exponential
	}

	maxRetries := e.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)
}

func containsStatus(statuses []int, status int) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}

	return false
}
