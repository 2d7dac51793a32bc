// Package featurestore fetches the precomputed feature row of one
// train/departure/day-of-week combination from the remote table store.
package featurestore

import (
	"context"
	"fmt"
	"log/slog"

	"oncycle.org/delay-api/internal/logging"
)

const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendMemory    = "memory"
)

// Query is an exact-match point lookup limited to one row.
type Query struct {
	Table                  string
	Columns                []string
	TrainID                string
	ScheduledDepartureTime string
	DayOfWeek              int
}

// Row holds the returned columns. Values keep the type produced by the
// backend (json.Number, int64, float64, string, bool).
type Row map[string]any

// Store is a remote point-lookup table. Lookup reports found=false when no row
// matches; err is reserved for transport and decoding failures.
type Store interface {
	Lookup(ctx context.Context, q Query) (row Row, found bool, err error)
	Name() string
}

// Pinger is implemented by stores that can probe reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Backend   string
	URL       string
	Key       string
	DSN       string
	RedisURL  string
	KeyPrefix string
}

// New builds the store selected by cfg.Backend.
func New(cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(slog.String("component", "feature_store"))

	switch cfg.Backend {
	case BackendPostgREST, "":
		return NewPostgREST(cfg.URL, cfg.Key, logger)
	case BackendPostgres:
		return NewPostgres(cfg.DSN, logger)
	case BackendRedis:
		return NewRedis(cfg.RedisURL, cfg.KeyPrefix, logger)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown feature store backend %q", cfg.Backend)
	}
}

// project keeps only the requested columns, mirroring a SQL select list.
func project(src map[string]any, columns []string) Row {
	if len(columns) == 0 {
		out := make(Row, len(src))
		for k, v := range src {
			out[k] = v
		}
		return out
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := src[c]; ok {
			out[c] = v
		}
	}
	return out
}
