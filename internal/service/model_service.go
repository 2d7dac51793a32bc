// Package service owns the prediction models for the lifetime of the process:
// it loads them once at startup, gates predictions on readiness and maps
// predictor results to API responses.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"oncycle.org/delay-api/internal/encoders"
	"oncycle.org/delay-api/internal/features"
	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/metrics"
	"oncycle.org/delay-api/internal/models"
	"oncycle.org/delay-api/internal/predictor"
)

var (
	ErrModelsNotLoaded  = errors.New("models not loaded")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrNoModelFiles     = errors.New("no valid model files found")
	ErrInvalidState     = errors.New("models can only be loaded once")
)

// State is the lifecycle stage of a ModelService. Failed is terminal.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config lists the artifacts and the feature table used by the service.
type Config struct {
	EncoderPath            string
	SingleStationModelPath string
	MetricsPath            string
	FeatureTable           string
}

type Option func(*ModelService)

// WithClock replaces the wall clock used for health timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ModelService) { s.now = now }
}

// WithMetrics records prediction outcomes and latency on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *ModelService) { s.metrics = c }
}

type ModelService struct {
	cfg      Config
	store    featurestore.Store
	logger   *slog.Logger
	metadata Metadata
	metrics  *metrics.Collectors
	now      func() time.Time

	state atomic.Int32

	// set while LOADING, read-only once READY
	encoders *encoders.Set
	ensemble *predictor.Ensemble
}

// New creates an uninitialized service. The metrics artifact is parsed here,
// once.
func New(cfg Config, store featurestore.Store, logger *slog.Logger, opts ...Option) *ModelService {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(slog.String("component", "model_service"))
	s := &ModelService{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		metadata: LoadMetadata(cfg.MetricsPath, logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ModelService) State() State { return State(s.state.Load()) }

func (s *ModelService) Ready() bool { return s.State() == StateReady }

func (s *ModelService) Metadata() Metadata { return s.metadata }

// LoadModels loads the encoders and every configured model file that exists.
// It may run once; any failure leaves the service FAILED for good.
func (s *ModelService) LoadModels(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		return fmt.Errorf("%w: state is %s", ErrInvalidState, s.State())
	}
	s.logger.Info("starting model loading")
	start := time.Now()

	if err := s.load(ctx); err != nil {
		s.state.Store(int32(StateFailed))
		logging.LogError(s.logger, "failed to load models", err)
		return fmt.Errorf("model loading failed: %w", err)
	}

	s.state.Store(int32(StateReady))
	logging.LogOperation(s.logger, "model_loading_completed",
		slog.String("model_version", s.metadata.Version),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (s *ModelService) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	enc, err := encoders.Load(s.cfg.EncoderPath, s.logger)
	if err != nil {
		return err
	}

	paths := map[predictor.PredictionType]string{
		predictor.TypeSingle: s.cfg.SingleStationModelPath,
	}
	existing := make(map[predictor.PredictionType]string, len(paths))
	for t, path := range paths {
		if path != "" && fileExists(path) {
			existing[t] = path
			s.logger.Info("found model", slog.String("prediction_type", string(t)), slog.String("path", path))
		} else {
			s.logger.Warn("model file not found", slog.String("prediction_type", string(t)), slog.String("path", path))
		}
	}
	if len(existing) == 0 {
		return ErrNoModelFiles
	}

	single := predictor.NewSingleStation(enc, s.store, s.cfg.FeatureTable, s.logger)
	ensemble := predictor.NewEnsemble(single, s.logger)
	if err := ensemble.LoadAll(existing); err != nil {
		return err
	}
	s.logger.Info("models loaded", slog.Int("count", len(existing)))

	s.encoders = enc
	s.ensemble = ensemble
	return nil
}

// PredictSingleStation predicts the delay at the next station for req. It
// fails with ErrModelsNotLoaded, without touching the feature store, unless
// the service is READY.
func (s *ModelService) PredictSingleStation(ctx context.Context, req models.SingleStationPredictionRequest) (*models.SingleStationPredictionResponse, error) {
	if !s.Ready() {
		s.countPrediction("not_ready")
		return nil, ErrModelsNotLoaded
	}

	start := time.Now()
	in := features.Input{
		TrainID:                req.TrainID,
		ScheduledDepartureTime: req.ScheduledDepartureTime,
		Date:                   req.TripDate,
	}
	res, err := s.ensemble.Predict(ctx, predictor.TypeSingle, in)
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.PredictionDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		s.countPrediction("failure")
		logging.LogError(s.logger, "single station prediction failed", err,
			slog.String("train_id", req.TrainID))
		return nil, fmt.Errorf("%w: %w", ErrPredictionFailed, err)
	}
	s.countPrediction("success")

	return &models.SingleStationPredictionResponse{
		PredictionType: models.PredictionTypeSingleStation,
		Result: models.PredictionResult{
			ScheduledDepartureTime: req.ScheduledDepartureTime,
			ArrivalDelay:           res.Prediction,
			DepartureDelay:         nil,
			StartStation:           res.CurrentStation,
			NextStation:            res.NextStation,
		},
		ProcessingTimeMs: scalar.Round(float64(elapsed.Nanoseconds())/1e6, 2),
		ModelVersion:     s.metadata.Version,
		ModelAccuracy:    s.metadata.Accuracy,
		ModelError:       s.metadata.Error,
	}, nil
}

// HealthCheck reports the in-memory state only; neither the store nor the
// artifacts are probed.
func (s *ModelService) HealthCheck() models.HealthStatus {
	loaded := s.Ready()
	status := models.StatusUnhealthy
	if loaded {
		status = models.StatusHealthy
	}
	return models.HealthStatus{
		Status:       status,
		ModelsLoaded: loaded,
		ModelVersion: s.metadata.Version,
		Datetime:     s.now().Format(models.DateTimeLayout),
	}
}

func (s *ModelService) Info() models.ModelInfo {
	info := models.ModelInfo{
		ModelVersion:             s.metadata.Version,
		ModelsLoaded:             s.Ready(),
		ModelAccuracy:            s.metadata.Accuracy,
		ModelError:               s.metadata.Error,
		Health:                   s.HealthCheck(),
		SupportedPredictionTypes: supportedPredictionTypes(),
		FeatureNames:             []string{},
		EncodedColumns:           []string{},
	}
	if info.ModelsLoaded {
		info.FeatureNames = s.ensemble.Single().FeatureNames()
		info.EncodedColumns = s.encoders.Columns()
	}
	return info
}

// apiPredictionTypes names each ensemble member as the API exposes it.
var apiPredictionTypes = map[predictor.PredictionType]models.PredictionType{
	predictor.TypeSingle: models.PredictionTypeSingleStation,
}

func supportedPredictionTypes() []models.PredictionType {
	out := make([]models.PredictionType, 0, len(apiPredictionTypes))
	for _, t := range predictor.SupportedTypes() {
		if name, ok := apiPredictionTypes[t]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (s *ModelService) countPrediction(outcome string) {
	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
