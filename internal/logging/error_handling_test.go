package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeClose(t *testing.T) {
	t.Run("closes response body safely with error logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("[]"))
		}))
		defer server.Close()

		resp, err := http.Get(server.URL)
		require.NoError(t, err)

		SafeCloseWithLogging(resp.Body, logger, "test_operation")

		assert.NotContains(t, buf.String(), `"level":"ERROR"`)
	})

	t.Run("logs error when close fails", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		SafeCloseWithLogging(&errorCloser{err: assert.AnError}, logger, "test_operation")

		output := buf.String()
		assert.Contains(t, output, `"level":"ERROR"`)
		assert.Contains(t, output, `"msg":"failed to close resource"`)
		assert.Contains(t, output, `"operation":"test_operation"`)
	})

	t.Run("ignores a nil closer", func(t *testing.T) {
		assert.NotPanics(t, func() {
			SafeCloseWithLogging(nil, Discard(), "noop")
		})
	})
}

func TestHandleDeferredError(t *testing.T) {
	t.Run("handles deferred errors in return statements", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		testFunc := func() (err error) {
			defer HandleDeferredError(&err, func() error {
				return assert.AnError
			}, logger, "close_connection")

			return nil
		}

		err := testFunc()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "close_connection")

		output := buf.String()
		assert.Contains(t, output, `"level":"ERROR"`)
		assert.Contains(t, output, `"msg":"deferred operation failed"`)
	})

	t.Run("preserves original error when deferred operation also fails", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		originalError := assert.AnError

		testFunc := func() (err error) {
			defer HandleDeferredError(&err, func() error {
				return assert.AnError
			}, logger, "close_connection")

			return originalError
		}

		err := testFunc()
		assert.ErrorIs(t, err, originalError)
		assert.NotContains(t, err.Error(), "close_connection")
		assert.Contains(t, buf.String(), `"msg":"deferred operation failed"`)
	})

	t.Run("leaves the error untouched when cleanup succeeds", func(t *testing.T) {
		testFunc := func() (err error) {
			defer HandleDeferredError(&err, func() error { return nil }, Discard(), "close_connection")
			return nil
		}

		assert.NoError(t, testFunc())
	})
}

type errorCloser struct {
	err error
}

func (e *errorCloser) Close() error {
	return e.err
}
