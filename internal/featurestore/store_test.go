package featurestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncycle.org/delay-api/internal/logging"
)

func sampleQuery() Query {
	return Query{
		Table:                  "processed_data",
		Columns:                []string{"distance_km", "current_station", "next_station"},
		TrainID:                "T123",
		ScheduledDepartureTime: "08:30",
		DayOfWeek:              6,
	}
}

func TestPostgRESTLookup(t *testing.T) {
	t.Run("sends an exact match filter limited to one row", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/v1/processed_data", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "distance_km,current_station,next_station", q.Get("select"))
			assert.Equal(t, "eq.T123", q.Get("train_id"))
			assert.Equal(t, "eq.08:30", q.Get("scheduled_departure_time"))
			assert.Equal(t, "eq.6", q.Get("day_of_week"))
			assert.Equal(t, "1", q.Get("limit"))
			assert.Equal(t, "secret", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"distance_km": 87.5, "current_station": 5, "next_station": 12}]`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL+"/", "secret", nil)
		require.NoError(t, err)

		row, found, err := store.Lookup(context.Background(), sampleQuery())
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, json.Number("87.5"), row["distance_km"])
		assert.Equal(t, json.Number("5"), row["current_station"])
	})

	t.Run("reports a miss on an empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL, "", nil)
		require.NoError(t, err)

		row, found, err := store.Lookup(context.Background(), sampleQuery())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, row)
	})

	t.Run("surfaces server errors with their message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"42P01","message":"relation \"public.processed_data\" does not exist"}`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL, "", nil)
		require.NoError(t, err)

		_, _, err = store.Lookup(context.Background(), sampleQuery())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "42P01")
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("builds a new client for every lookup", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, "eq.T123", r.URL.Query().Get("train_id"))
			_, _ = w.Write([]byte(`[{"distance_km": 87.5}]`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL, "", nil)
		require.NoError(t, err)

		ctx := context.Background()
		assert.NotSame(t, store.client(ctx), store.client(ctx))
		for i := 0; i < 2; i++ {
			_, found, err := store.Lookup(ctx, sampleQuery())
			require.NoError(t, err)
			assert.True(t, found)
		}
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL, "", nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err = store.Lookup(ctx, sampleQuery())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fails when the store is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		store, err := NewPostgREST(url, "", nil)
		require.NoError(t, err)

		_, _, err = store.Lookup(context.Background(), sampleQuery())
		assert.Error(t, err)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not": "a list"}`))
		}))
		defer server.Close()

		store, err := NewPostgREST(server.URL, "", nil)
		require.NoError(t, err)

		_, _, err = store.Lookup(context.Background(), sampleQuery())
		assert.Error(t, err)
	})
}

func TestNewPostgRESTValidation(t *testing.T) {
	_, err := NewPostgREST("", "key", nil)
	assert.Error(t, err)

	_, err = NewPostgREST("not a url", "key", nil)
	assert.Error(t, err)
}

func TestLookupSQL(t *testing.T) {
	query, args, err := lookupSQL(sampleQuery())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, `SELECT "distance_km", "current_station", "next_station" FROM "processed_data" WHERE `))
	assert.Contains(t, query, "train_id = $")
	assert.Contains(t, query, "scheduled_departure_time = $")
	assert.Contains(t, query, "day_of_week = $")
	assert.True(t, strings.HasSuffix(query, "LIMIT 1"))
	assert.ElementsMatch(t, []any{"T123", "08:30", 6}, args)

	t.Run("quotes hostile identifiers", func(t *testing.T) {
		q := sampleQuery()
		q.Columns = []string{`x"; DROP TABLE trips; --`}
		query, _, err := lookupSQL(q)
		require.NoError(t, err)
		assert.Contains(t, query, `"x""; DROP TABLE trips; --"`)
	})

	t.Run("rejects an empty table", func(t *testing.T) {
		q := sampleQuery()
		q.Table = ""
		_, _, err := lookupSQL(q)
		assert.Error(t, err)
	})
}

func TestRedisKeyAndRow(t *testing.T) {
	store, err := NewRedis("redis://localhost:6379/2", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "features:processed_data:T123:08:30:6", store.Key(sampleQuery()))

	t.Run("namespaces keys by table", func(t *testing.T) {
		q := sampleQuery()
		q.Table = "processed_data_v2"
		assert.Equal(t, "features:processed_data_v2:T123:08:30:6", store.Key(q))
	})

	t.Run("pairs values with their fields", func(t *testing.T) {
		row, found, err := hashRow([]string{"distance_km", "current_station", "next_station"}, []any{"87.5", "5", nil})
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, Row{"distance_km": "87.5", "current_station": "5"}, row)
	})

	t.Run("treats an absent hash as a miss", func(t *testing.T) {
		_, found, err := hashRow([]string{"a", "b"}, []any{nil, nil})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("rejects mismatched replies", func(t *testing.T) {
		_, _, err := hashRow([]string{"a", "b"}, []any{"1"})
		assert.Error(t, err)
	})

	t.Run("rejects invalid urls", func(t *testing.T) {
		_, err := NewRedis("mysql://nope", "", nil)
		assert.Error(t, err)
	})
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	store.Put("processed_data", "T123", "08:30", 6, Row{
		"distance_km":     87.5,
		"current_station": 5,
		"next_station":    12,
		"train_type":      2,
	})

	t.Run("projects the selected columns", func(t *testing.T) {
		row, found, err := store.Lookup(context.Background(), sampleQuery())
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, Row{"distance_km": 87.5, "current_station": 5, "next_station": 12}, row)
	})

	t.Run("matches on every key part", func(t *testing.T) {
		q := sampleQuery()
		q.DayOfWeek = 5
		_, found, err := store.Lookup(context.Background(), q)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("returns configured failures", func(t *testing.T) {
		store.FailWith(errors.New("connection refused"))
		defer store.FailWith(nil)

		_, _, err := store.Lookup(context.Background(), sampleQuery())
		assert.EqualError(t, err, "connection refused")
	})

	assert.Equal(t, int64(3), store.Lookups())
}

func TestInstrumented(t *testing.T) {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lookups_total"}, []string{"result"})
	mem := NewMemory()
	mem.Put("processed_data", "T123", "08:30", 6, Row{"current_station": 5})
	store := WithMetrics(mem, lookups)

	ctx := context.Background()
	_, _, _ = store.Lookup(ctx, sampleQuery())
	miss := sampleQuery()
	miss.TrainID = "T999"
	_, _, _ = store.Lookup(ctx, miss)
	mem.FailWith(errors.New("timeout"))
	_, _, _ = store.Lookup(ctx, sampleQuery())

	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("error")))
	assert.Equal(t, BackendMemory, store.Name())

	assert.Same(t, mem, WithMetrics(mem, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "postgrest is the default", cfg: Config{URL: "https://abc.supabase.co", Key: "k"}, want: BackendPostgREST},
		{name: "postgres", cfg: Config{Backend: "postgres", DSN: "postgres://u:p@localhost:5432/oncycle"}, want: BackendPostgres},
		{name: "redis", cfg: Config{Backend: "redis", RedisURL: "redis://localhost:6379/0"}, want: BackendRedis},
		{name: "memory", cfg: Config{Backend: "memory"}, want: BackendMemory},
		{name: "postgrest without url", cfg: Config{Backend: "postgrest"}, wantErr: true},
		{name: "postgres without dsn", cfg: Config{Backend: "postgres"}, wantErr: true},
		{name: "unknown backend", cfg: Config{Backend: "cassandra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg, logging.Discard())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.Name())
		})
	}
}

type flakyStore struct {
	*Memory
	failures int
	pings    int
}

func (f *flakyStore) Ping(ctx context.Context) error {
	f.pings++
	if f.pings <= f.failures {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func TestWaitReachable(t *testing.T) {
	t.Run("retries until the store answers", func(t *testing.T) {
		store := &flakyStore{Memory: NewMemory(), failures: 2}
		err := WaitReachable(context.Background(), store, 10*time.Second, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, 3, store.pings)
	})

	t.Run("gives up after the deadline", func(t *testing.T) {
		store := &flakyStore{Memory: NewMemory(), failures: 1000}
		err := WaitReachable(context.Background(), store, 300*time.Millisecond, logging.Discard())
		assert.Error(t, err)
	})

	t.Run("treats stores without ping as reachable", func(t *testing.T) {
		err := WaitReachable(context.Background(), NewMemory(), time.Second, logging.Discard())
		assert.NoError(t, err)
	})
}
