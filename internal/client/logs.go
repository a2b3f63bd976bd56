package client

import (
	"context"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

type logReader interface {
	Read(ctx context.Context, sourceID string) ([]capi.LogRecord, error)
}

// LogFetcher implements capi.LogIncrementalFetcher on top of a log reader.
type LogFetcher struct {
	reader logReader
	logger capi.Logger
}

// NewLogFetcher creates a new incremental log fetcher.
func NewLogFetcher(reader logReader, logger capi.Logger) *LogFetcher {
	if logger == nil {
		logger = capi.NoopLogger()
	}

	return &LogFetcher{reader: reader, logger: logger}
}

// GetRecentLogs implements capi.LogIncrementalFetcher.GetRecentLogs.
func (f *LogFetcher) GetRecentLogs(ctx context.Context, appGUID string, offset *capi.LogOffset) ([]capi.LogRecord, error) {
	if appGUID == "" {
		return nil, &capi.ValidationError{Field: "app GUID", Message: "must not be empty"}
	}

	records, err := f.reader.Read(ctx, appGUID)
	if err != nil {
		return nil, err
	}

	return capi.FilterLogsAfter(records, offset), nil
}

// GetRecentLogsSafely implements capi.LogIncrementalFetcher.GetRecentLogsSafely.
func (f *LogFetcher) GetRecentLogsSafely(ctx context.Context, appGUID string, offset *capi.LogOffset) []capi.LogRecord {
	records, err := f.GetRecentLogs(ctx, appGUID, offset)
	if err != nil {
		f.logger.Warn("could not read recent logs", map[string]interface{}{
			"app_guid": appGUID,
			"error":    err.Error(),
		})

		return []capi.LogRecord{}
	}

	return records
}
