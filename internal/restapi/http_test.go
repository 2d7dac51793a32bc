package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"oncycle.org/delay-api/internal/app"
	"oncycle.org/delay-api/internal/appconf"
	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
)

const featureTable = "processed_data"

type testOptions struct {
	rateLimit      int
	allowedOrigins []string
	skipLoad       bool
}

func testConfig(opts testOptions) appconf.Config {
	var cfg appconf.Config
	cfg.AppName = "ONCycle Train Delay Prediction API"
	cfg.Version = "0.1.0"
	cfg.Env = appconf.Test
	cfg.Server.RateLimit = opts.rateLimit
	cfg.Server.AllowedOrigins = opts.allowedOrigins
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	cfg.Model.SingleStationPath = filepath.Join("..", "..", "testdata", "model.json")
	cfg.Model.EncoderPath = filepath.Join("..", "..", "testdata", "encoders.json")
	cfg.Model.MetricsPath = filepath.Join("..", "..", "testdata", "metrics.json")
	cfg.FeatureStore.Backend = featurestore.BackendMemory
	cfg.FeatureStore.Table = featureTable
	return cfg
}

// scenarioStore holds the row for train T123 leaving at 08:30 on Sundays,
// from Casablanca to Rabat.
func scenarioStore() *featurestore.Memory {
	mem := featurestore.NewMemory()
	mem.Put(featureTable, "T123", "08:30", 6, featurestore.Row{
		"current_station": 5, "next_station": 12, "distance_km": 87.5, "hour": 8,
	})
	return mem
}

func createTestApiWith(t *testing.T, store *featurestore.Memory, opts testOptions) *RestAPI {
	t.Helper()

	application := app.NewWithStore(testConfig(opts), logging.Discard(), store)
	if !opts.skipLoad {
		require.NoError(t, application.ModelService.LoadModels(context.Background()))
	}

	api := NewRestAPI(application)
	t.Cleanup(api.Close)
	return api
}

func createTestApi(t *testing.T) *RestAPI {
	return createTestApiWith(t, scenarioStore(), testOptions{rateLimit: 100})
}

func serveApi(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

// serveApiAndRetrieveEndpoint performs a GET and decodes the JSON body, if any.
func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, endpoint string) (*http.Response, map[string]any) {
	t.Helper()
	server := serveApi(t, api)

	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	return resp, readJSON(t, resp)
}

func postJSON(t *testing.T, api *RestAPI, endpoint string, body any) (*http.Response, map[string]any) {
	t.Helper()
	server := serveApi(t, api)

	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	resp, err := http.Post(server.URL+endpoint, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp, readJSON(t, resp)
}

func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer logging.SafeCloseWithLogging(resp.Body, logging.Discard(), "test_response_body")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func scenarioRequest() map[string]any {
	return map[string]any{
		"train_id":                 "T123",
		"scheduled_departure_time": "08:30",
		"trip_date":                "2025-06-01",
	}
}
