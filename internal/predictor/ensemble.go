package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"oncycle.org/delay-api/internal/features"
	"oncycle.org/delay-api/internal/logging"
)

// PredictionType names an ensemble member.
type PredictionType string

const TypeSingle PredictionType = "single"

var ErrUnsupportedPredictionType = errors.New("unsupported prediction type")

// Ensemble routes a prediction type to its predictor. Only the single-station
// predictor exists.
type Ensemble struct {
	single *SingleStation
	logger *slog.Logger
}

func NewEnsemble(single *SingleStation, logger *slog.Logger) *Ensemble {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ensemble{single: single, logger: logger}
}

// SupportedTypes lists the prediction types an Ensemble dispatches.
func SupportedTypes() []PredictionType {
	return []PredictionType{TypeSingle}
}

// Single returns the single-station member.
func (e *Ensemble) Single() *SingleStation { return e.single }

func (e *Ensemble) Predict(ctx context.Context, t PredictionType, in features.Input) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch t {
	case TypeSingle:
		res, err = e.single.Predict(ctx, in)
	default:
		err = fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedPredictionType, string(t), SupportedTypes())
	}
	if err != nil {
		logging.LogError(e.logger, "ensemble prediction failed", err,
			slog.String("prediction_type", string(t)))
		return nil, err
	}
	return res, nil
}

// LoadAll loads every member that has a path. Paths for unknown types are
// ignored.
func (e *Ensemble) LoadAll(paths map[PredictionType]string) error {
	for t, path := range paths {
		switch t {
		case TypeSingle:
			if err := e.single.LoadModel(path); err != nil {
				return fmt.Errorf("loading %s model: %w", t, err)
			}
		default:
			e.logger.Debug("ignoring model path for unknown prediction type",
				slog.String("prediction_type", string(t)),
				slog.String("path", path))
		}
	}
	return nil
}
