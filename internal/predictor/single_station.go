// Package predictor turns an assembled feature row into a delay estimate for
// the next station.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"oncycle.org/delay-api/internal/encoders"
	"oncycle.org/delay-api/internal/features"
	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/regressor"
)

var (
	ErrSchemaMismatch = errors.New("feature row does not match the model schema")
	ErrModelNotLoaded = errors.New("model not loaded")
)

// Result is one next-station prediction. Prediction is in minutes and never
// negative.
type Result struct {
	Prediction     float64
	CurrentStation string
	NextStation    string
}

// SingleStation predicts the delay at the station following the train's
// current one.
type SingleStation struct {
	encoders *encoders.Set
	store    featurestore.Store
	table    string
	logger   *slog.Logger

	model     *regressor.Model
	assembler *features.Assembler
}

func NewSingleStation(enc *encoders.Set, store featurestore.Store, table string, logger *slog.Logger) *SingleStation {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SingleStation{
		encoders: enc,
		store:    store,
		table:    table,
		logger:   logger.With(slog.String("predictor", string(TypeSingle))),
	}
}

// LoadModel reads the model artifact at path. It must complete before the
// predictor is shared between goroutines.
func (p *SingleStation) LoadModel(path string) error {
	m, err := regressor.Load(path)
	if err != nil {
		logging.LogError(p.logger, "failed to load model", err, slog.String("path", path))
		return err
	}
	p.SetModel(m)
	p.logger.Info("model loaded",
		slog.String("path", path),
		slog.Int("trees", m.NumTrees()),
		slog.Int("features", len(m.FeatureNames())),
		slog.Any("lookup_columns", p.assembler.Columns()))
	return nil
}

// SetModel installs an already parsed model.
func (p *SingleStation) SetModel(m *regressor.Model) {
	p.model = m
	p.assembler = features.NewAssembler(p.store, p.table, m.FeatureNames(), p.logger)
}

func (p *SingleStation) Loaded() bool { return p.model != nil }

// FeatureNames returns the model's ordered input columns, or nil before a
// model is loaded.
func (p *SingleStation) FeatureNames() []string {
	if p.model == nil {
		return nil
	}
	return append([]string(nil), p.model.FeatureNames()...)
}

func (p *SingleStation) Predict(ctx context.Context, in features.Input) (*Result, error) {
	if p.model == nil {
		return nil, ErrModelNotLoaded
	}

	row, err := p.assembler.Assemble(ctx, in)
	if err != nil {
		return nil, err
	}

	x, err := selectFeatures(row, p.model.FeatureNames())
	if err != nil {
		return nil, err
	}

	raw, err := p.model.Predict(x)
	if err != nil {
		return nil, err
	}
	prediction := math.Max(raw, 0)

	currentCode, nextCode, err := row.Stations()
	if err != nil {
		return nil, err
	}
	current, err := p.encoders.Decode([]int{currentCode}, features.ColumnCurrentStation)
	if err != nil {
		return nil, err
	}
	next, err := p.encoders.Decode([]int{nextCode}, features.ColumnNextStation)
	if err != nil {
		return nil, err
	}

	return &Result{
		Prediction:     prediction,
		CurrentStation: current[0],
		NextStation:    next[0],
	}, nil
}

// selectFeatures orders the row's values the way the model was trained.
func selectFeatures(row features.Row, names []string) ([]float64, error) {
	var missing []string
	for _, name := range names {
		if _, ok := row[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns [%s]", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	x := make([]float64, len(names))
	for i, name := range names {
		v, err := features.ToFloat(row[name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		x[i] = v
	}
	return x, nil
}
