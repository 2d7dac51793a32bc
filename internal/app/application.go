package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"oncycle.org/delay-api/internal/appconf"
	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/metrics"
	"oncycle.org/delay-api/internal/service"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware. Everything here is built once at startup.
type Application struct {
	Config       appconf.Config
	Logger       *slog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Collectors
	FeatureStore featurestore.Store
	ModelService *service.ModelService
}

// New builds the application with the feature store selected by cfg.
func New(cfg appconf.Config, logger *slog.Logger) (*Application, error) {
	store, err := featurestore.New(cfg.FeatureStoreConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating feature store: %w", err)
	}
	return NewWithStore(cfg, logger, store), nil
}

// NewWithStore builds the application around an existing feature store.
// Models are not loaded yet; call ModelService.LoadModels.
func NewWithStore(cfg appconf.Config, logger *slog.Logger, store featurestore.Store) *Application {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store = featurestore.WithMetrics(store, m.FeatureLookups)

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Metrics:      m,
		FeatureStore: store,
		ModelService: service.New(cfg.ServiceConfig(), store, logger, service.WithMetrics(m)),
	}
}
