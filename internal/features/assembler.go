// Package features builds the model input row for one prediction request:
// calendar fields derived from the trip date merged with the precomputed
// columns stored for the train's departure.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
)

const (
	ColumnTrainID                = "train_id"
	ColumnScheduledDepartureTime = "scheduled_departure_time"
	ColumnDate                   = "date"
	ColumnDay                    = "day"
	ColumnDayOfWeek              = "day_of_week"
	ColumnIsWeekend              = "is_weekend"
	ColumnCurrentStation         = "current_station"
	ColumnNextStation            = "next_station"

	DateLayout = "2006-01-02"
)

var ErrMissingStation = errors.New("station code missing from feature row")

// Input is the assembler's view of a prediction request. Empty strings mean
// the field was not supplied.
type Input struct {
	TrainID                string
	ScheduledDepartureTime string
	Date                   string
}

// Row is one assembled feature row keyed by column name.
type Row map[string]any

// Stations returns the encoded current and next station of the row.
func (r Row) Stations() (current int, next int, err error) {
	current, err = r.code(ColumnCurrentStation)
	if err != nil {
		return 0, 0, err
	}
	next, err = r.code(ColumnNextStation)
	if err != nil {
		return 0, 0, err
	}
	return current, next, nil
}

func (r Row) code(column string) (int, error) {
	v, ok := r[column]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingStation, column)
	}
	code, err := ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", column, err)
	}
	return code, nil
}

type Assembler struct {
	store   featurestore.Store
	table   string
	columns []string
	logger  *slog.Logger
}

// NewAssembler returns an assembler that reads modelFeatures plus the two
// station columns from table.
func NewAssembler(store featurestore.Store, table string, modelFeatures []string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Assembler{
		store:   store,
		table:   table,
		columns: lookupColumns(modelFeatures),
		logger:  logger.With(slog.String("component", "feature_assembler")),
	}
}

// Columns lists the columns requested from the store.
func (a *Assembler) Columns() []string {
	return append([]string(nil), a.columns...)
}

// Assemble derives the calendar fields of in and merges the stored row for
// its train, departure time and day of week. When the train id or departure
// time is missing, or the store has no matching row, the returned row holds
// only the request fields.
func (a *Assembler) Assemble(ctx context.Context, in Input) (Row, error) {
	row := Row{
		ColumnTrainID:                in.TrainID,
		ColumnScheduledDepartureTime: in.ScheduledDepartureTime,
		ColumnDate:                   in.Date,
	}

	if in.TrainID == "" || in.ScheduledDepartureTime == "" {
		a.logger.Warn("train_id or scheduled_departure_time not found in input data",
			slog.Bool("has_train_id", in.TrainID != ""),
			slog.Bool("has_scheduled_departure_time", in.ScheduledDepartureTime != ""))
		return row, nil
	}

	cal, err := Calendar(in.Date)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stored, found, err := a.store.Lookup(ctx, featurestore.Query{
		Table:                  a.table,
		Columns:                a.columns,
		TrainID:                in.TrainID,
		ScheduledDepartureTime: in.ScheduledDepartureTime,
		DayOfWeek:              cal.DayOfWeek,
	})
	if err != nil {
		logging.LogError(a.logger, "feature lookup failed", err,
			slog.String("train_id", in.TrainID),
			slog.String("backend", a.store.Name()))
		return nil, fmt.Errorf("feature lookup for train %s: %w", in.TrainID, err)
	}
	logging.LogOperation(a.logger, "feature_lookup",
		slog.String("train_id", in.TrainID),
		slog.Int("day_of_week", cal.DayOfWeek),
		slog.Bool("found", found),
		slog.Duration("duration", time.Since(start)))

	if !found {
		return row, nil
	}

	for k, v := range stored {
		row[k] = v
	}
	row[ColumnDay] = cal.Day
	row[ColumnDayOfWeek] = cal.DayOfWeek
	row[ColumnIsWeekend] = cal.IsWeekend
	return row, nil
}

// CalendarFields are the features derived from the trip date.
type CalendarFields struct {
	Day       int
	DayOfWeek int
	IsWeekend bool
}

// Calendar parses a YYYY-MM-DD date. Days of the week count from Monday (0)
// to Sunday (6).
func Calendar(date string) (CalendarFields, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return CalendarFields{}, fmt.Errorf("invalid trip date %q: %w", date, err)
	}
	dow := (int(t.Weekday()) + 6) % 7
	return CalendarFields{
		Day:       t.Day(),
		DayOfWeek: dow,
		IsWeekend: dow >= 5,
	}, nil
}

func lookupColumns(modelFeatures []string) []string {
	seen := make(map[string]bool, len(modelFeatures)+2)
	columns := make([]string, 0, len(modelFeatures)+2)
	for _, c := range append(append([]string(nil), modelFeatures...), ColumnCurrentStation, ColumnNextStation) {
		if seen[c] {
			continue
		}
		seen[c] = true
		columns = append(columns, c)
	}
	return columns
}
