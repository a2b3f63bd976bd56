package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

const testAppGUID = "99999999-9999-4999-8999-999999999999"

func logEnvelope(seconds int64, message, stream string) object {
	return object{
		"timestamp": strconv.FormatInt(time.Unix(seconds, 0).UnixNano(), 10),
		"source_id": testAppGUID,
		"tags":      object{"source_type": "APP/PROC/WEB"},
		"log": object{
			"payload": base64.StdEncoding.EncodeToString([]byte(message)),
			"type":    stream,
		},
	}
}

func logCacheHandler(t *testing.T, envelopes ...object) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/read/"+testAppGUID, r.URL.Path)
		assert.Equal(t, "LOG", r.URL.Query().Get("envelope_types"))
		assert.Equal(t, "true", r.URL.Query().Get("descending"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))

		writeJSON(t, w, http.StatusOK, object{"envelopes": object{"batch": envelopes}})
	}
}

func TestLogCacheClient_Read(t *testing.T) {
	t.Parallel()

	httpClient := newTestHTTPClient(t, logCacheHandler(t,
		logEnvelope(3, "third", "OUT"),
		object{"timestamp": "4", "source_id": testAppGUID},
		logEnvelope(2, "second", "ERR"),
		logEnvelope(1, "first", "OUT"),
		object{"timestamp": "not-a-number", "log": object{"payload": "", "type": "OUT"}},
	))

	logCache := NewLogCacheClient(httpClient, newTestExecutor(), nil)

	records, err := logCache.Read(context.Background(), testAppGUID)
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Message)
	assert.Equal(t, "second", records[1].Message)
	assert.Equal(t, "ERR", records[1].Type)
	assert.Equal(t, "third", records[2].Message)
	assert.Equal(t, "APP/PROC/WEB", records[2].SourceType)
	assert.Equal(t, time.Unix(3, 0).UTC(), records[2].Timestamp)
}

func TestLogCacheClient_UnknownSourceIsEmpty(t *testing.T) {
	t.Parallel()

	httpClient := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, object{"description": "not found"})
	})

	logCache := NewLogCacheClient(httpClient, newTestExecutor(), nil)

	records, err := logCache.Read(context.Background(), testAppGUID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLogCacheClient_Failure(t *testing.T) {
	t.Parallel()

	httpClient := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	logCache := NewLogCacheClient(httpClient, newTestExecutor(), nil)

	_, err := logCache.Read(context.Background(), testAppGUID)

	var domainErr *capi.DomainError

	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, http.StatusBadGateway, domainErr.StatusCode)
	assert.Nil(t, domainErr.Description)
}
