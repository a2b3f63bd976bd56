package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// LogCacheClient reads recent log envelopes from log-cache.
type LogCacheClient struct {
	httpClient *http.Client
	executor   *capi.Executor
	logger     capi.Logger
	limit      int
}

// NewLogCacheClient creates a log-cache client. httpClient must be rooted at
// the log-cache URL, not the API endpoint.
func NewLogCacheClient(httpClient *http.Client, executor *capi.Executor, logger capi.Logger) *LogCacheClient {
	if logger == nil {
		logger = capi.NoopLogger()
	}

	return &LogCacheClient{
		httpClient: httpClient,
		executor:   executor,
		logger:     logger,
		limit:      constants.DefaultLogLimit,
	}
}

type envelopeBatch struct {
	Envelopes struct {
		Batch []envelope `json:"batch"`
	} `json:"envelopes"`
}

type envelope struct {
	Timestamp string            `json:"timestamp"`
	SourceID  string            `json:"source_id"`
	Tags      map[string]string `json:"tags"`
	Log       *struct {
		Payload string `json:"payload"`
		Type    string `json:"type"`
	} `json:"log"`
}

// Read returns the most recent log records of sourceID in ascending
// timestamp order. An unknown source yields an empty batch.
func (c *LogCacheClient) Read(ctx context.Context, sourceID string) ([]capi.LogRecord, error) {
	query := url.Values{}
	query.Set("envelope_types", "LOG")
	query.Set("descending", "true")
	query.Set("limit", strconv.Itoa(c.limit))

	path := constants.APIPathLogCacheRead + "/" + url.PathEscape(sourceID)

	body, err := capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) ([]byte, error) {
		resp, err := c.httpClient.Get(ctx, path, query)
		if err != nil {
			return nil, err
		}

		return resp.Body, nil
	}, nethttp.StatusNotFound)
	if err != nil {
		return nil, fmt.Errorf("reading logs of %s: %w", sourceID, err)
	}

	if body == nil {
		return []capi.LogRecord{}, nil
	}

	var batch envelopeBatch

	err = json.Unmarshal(body, &batch)
	if err != nil {
		return nil, fmt.Errorf("parsing log envelopes: %w", err)
	}

	records := make([]capi.LogRecord, 0, len(batch.Envelopes.Batch))

	for _, env := range batch.Envelopes.Batch {
		record, ok := c.toRecord(env)
		if ok {
			records = append(records, record)
		}
	}

	slices.SortStableFunc(records, func(a, b capi.LogRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return records, nil
}

func (c *LogCacheClient) toRecord(env envelope) (capi.LogRecord, bool) {
	if env.Log == nil {
		return capi.LogRecord{}, false
	}

	nanos, err := strconv.ParseInt(env.Timestamp, 10, 64)
	if err != nil {
		c.logger.Warn("skipping log envelope with malformed timestamp", map[string]interface{}{
			"timestamp": env.Timestamp,
		})

		return capi.LogRecord{}, false
	}

	payload, err := base64.StdEncoding.DecodeString(env.Log.Payload)
	if err != nil {
		c.logger.Warn("skipping log envelope with malformed payload", map[string]interface{}{
			"error": err.Error(),
		})

		return capi.LogRecord{}, false
	}

	return capi.LogRecord{
		Timestamp:  time.Unix(0, nanos).UTC(),
		Message:    string(payload),
		SourceID:   env.SourceID,
		SourceType: env.Tags["source_type"],
		Type:       env.Log.Type,
	}, true
}
