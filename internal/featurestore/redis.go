package featurestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"oncycle.org/delay-api/internal/logging"
)

// Redis reads feature rows stored as hashes, one hash per
// train/departure/day-of-week key.
type Redis struct {
	opts   *redis.Options
	prefix string
	logger *slog.Logger
}

func NewRedis(rawURL, prefix string, logger *slog.Logger) (*Redis, error) {
	if rawURL == "" {
		return nil, errors.New("redis feature store requires FEATURE_STORE_REDIS_URL")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FEATURE_STORE_REDIS_URL: %w", err)
	}
	if prefix == "" {
		prefix = "features"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Redis{opts: opts, prefix: prefix, logger: logger}, nil
}

func (s *Redis) Name() string { return BackendRedis }

// Key returns the hash key holding the row matched by q.
func (s *Redis) Key(q Query) string {
	return strings.Join([]string{
		s.prefix,
		q.Table,
		q.TrainID,
		q.ScheduledDepartureTime,
		strconv.Itoa(q.DayOfWeek),
	}, ":")
}

func (s *Redis) Lookup(ctx context.Context, q Query) (Row, bool, error) {
	client := redis.NewClient(s.opts)
	defer logging.SafeCloseWithLogging(client, s.logger, "close_redis_client")

	key := s.Key(q)
	if len(q.Columns) == 0 {
		fields, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", key, err)
		}
		if len(fields) == 0 {
			return nil, false, nil
		}
		row := make(Row, len(fields))
		for k, v := range fields {
			row[k] = v
		}
		return row, true, nil
	}

	values, err := client.HMGet(ctx, key, q.Columns...).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return hashRow(q.Columns, values)
}

func (s *Redis) Ping(ctx context.Context) error {
	client := redis.NewClient(s.opts)
	defer logging.SafeCloseWithLogging(client, s.logger, "close_redis_client")
	return client.Ping(ctx).Err()
}

// hashRow pairs HMGET results with their fields. Absent fields come back as
// nil; a hash with no requested field at all is a miss.
func hashRow(columns []string, values []any) (Row, bool, error) {
	if len(values) != len(columns) {
		return nil, false, fmt.Errorf("redis returned %d values for %d fields", len(values), len(columns))
	}
	row := make(Row, len(columns))
	for i, v := range values {
		if v != nil {
			row[columns[i]] = v
		}
	}
	if len(row) == 0 {
		return nil, false, nil
	}
	return row, true, nil
}
