package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// Static errors for err113 compliance.
var (
	ErrJobFailed = errors.New("job failed")
)

// JobsClient follows asynchronous jobs such as service instance creation.
type JobsClient struct {
	httpClient   *http.Client
	executor     *capi.Executor
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewJobsClient creates a new jobs client.
func NewJobsClient(httpClient *http.Client, executor *capi.Executor) *JobsClient {
	return &JobsClient{
		httpClient:   httpClient,
		executor:     executor,
		pollInterval: constants.DefaultPollInterval,
		pollTimeout:  constants.DefaultJobPollTimeout,
	}
}

// Get reads a job. locator is either a job GUID or the job URL returned in a
// Location header.
func (c *JobsClient) Get(ctx context.Context, locator string) (*capi.Job, error) {
	path := locator
	if !strings.Contains(locator, "/") {
		path = "/v3/jobs/" + locator
	}

	job, err := capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) (*capi.Job, error) {
		resp, err := c.httpClient.Get(ctx, path, nil)
		if err != nil {
			return nil, err
		}

		var job capi.Job

		err = json.Unmarshal(resp.Body, &job)
		if err != nil {
			return nil, fmt.Errorf("parsing job: %w", err)
		}

		return &job, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}

	return job, nil
}

// PollUntilComplete polls the job until it reaches a terminal state
// (COMPLETE or FAILED).
func (c *JobsClient) PollUntilComplete(ctx context.Context, locator string) (*capi.Job, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	job, err := c.Get(pollCtx, locator)
	if err != nil {
		return nil, fmt.Errorf("getting job status: %w", err)
	}

	for !isJobComplete(job) {
		select {
		case <-pollCtx.Done():
			return job, fmt.Errorf("timeout waiting for job to complete: %w", pollCtx.Err())
		case <-ticker.C:
			next, err := c.Get(pollCtx, locator)
			if err != nil {
				if pollCtx.Err() != nil {
					return job, fmt.Errorf("timeout waiting for job to complete: %w", pollCtx.Err())
				}

				return nil, fmt.Errorf("getting job status: %w", err)
			}

			job = next
		}
	}

	if job.State == constants.JobStateFailed {
		return job, fmt.Errorf("%w: %s", ErrJobFailed, formatJobErrors(job))
	}

	return job, nil
}

// isJobComplete checks if a job is in a terminal state.
func isJobComplete(job *capi.Job) bool {
	return job.State == constants.JobStateComplete || job.State == constants.JobStateFailed
}

// formatJobErrors formats job errors for display.
func formatJobErrors(job *capi.Job) string {
	if len(job.Errors) == 0 {
		return "no error details available"
	}

	if len(job.Errors) == 1 {
		return job.Errors[0].Detail
	}

	result := "multiple errors:"
	for i, err := range job.Errors {
		result += fmt.Sprintf("\n  %d. %s", i+1, err.Detail)
	}

	return result
}
