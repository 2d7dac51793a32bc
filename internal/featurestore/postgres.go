package featurestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"oncycle.org/delay-api/internal/logging"
)

// Postgres reads the feature table directly over the Postgres protocol.
type Postgres struct {
	dsn    string
	logger *slog.Logger
}

func NewPostgres(dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres feature store requires FEATURE_STORE_DSN")
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("invalid FEATURE_STORE_DSN: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Postgres{dsn: dsn, logger: logger}, nil
}

func (s *Postgres) Name() string { return BackendPostgres }

func (s *Postgres) Lookup(ctx context.Context, q Query) (row Row, found bool, err error) {
	query, args, err := lookupSQL(q)
	if err != nil {
		return nil, false, fmt.Errorf("building lookup query: %w", err)
	}

	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, false, fmt.Errorf("connecting to feature store: %w", err)
	}
	defer logging.HandleDeferredError(&err, func() error {
		return conn.Close(context.Background())
	}, s.logger, "close_feature_store_connection")

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", q.Table, err)
	}
	values, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s row: %w", q.Table, err)
	}
	return Row(values), true, nil
}

func (s *Postgres) Ping(ctx context.Context) (err error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return err
	}
	defer logging.HandleDeferredError(&err, func() error {
		return conn.Close(context.Background())
	}, s.logger, "close_feature_store_connection")
	return conn.Ping(ctx)
}

func lookupSQL(q Query) (string, []any, error) {
	if q.Table == "" {
		return "", nil, errors.New("empty table name")
	}
	columns := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		columns[i] = pgx.Identifier{c}.Sanitize()
	}
	if len(columns) == 0 {
		columns = []string{"*"}
	}

	return sq.Select(columns...).
		From(pgx.Identifier{q.Table}.Sanitize()).
		Where(sq.Eq{
			"train_id":                 q.TrainID,
			"scheduled_departure_time": q.ScheduledDepartureTime,
			"day_of_week":              q.DayOfWeek,
		}).
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}
