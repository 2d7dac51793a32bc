package models

import "time"

// DateTimeLayout is the timestamp format of health responses
const DateTimeLayout = "2006-01-02 15:04:05"

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// APIHealth Liveness of the HTTP server
type APIHealth struct {
	Status   string `json:"status"`
	Datetime string `json:"datetime"`
}

// NewAPIHealth reports a healthy server at t
func NewAPIHealth(t time.Time) APIHealth {
	return APIHealth{Status: StatusHealthy, Datetime: t.Format(DateTimeLayout)}
}

// ModelReadiness Readiness of the prediction models
type ModelReadiness struct {
	Status string `json:"status"`
}

// HealthStatus Snapshot of the model service state
type HealthStatus struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
	ModelVersion string `json:"model_version"`
	Datetime     string `json:"datetime"`
}

// ModelInfo Information about the loaded models
type ModelInfo struct {
	ModelVersion             string           `json:"model_version"`
	ModelsLoaded             bool             `json:"models_loaded"`
	ModelAccuracy            float64          `json:"model_accuracy"`
	ModelError               float64          `json:"model_error"`
	Health                   HealthStatus     `json:"health"`
	SupportedPredictionTypes []PredictionType `json:"supported_prediction_types"`
	FeatureNames             []string         `json:"feature_names"`
	EncodedColumns           []string         `json:"encoded_columns"`
}

// RootInfo API landing document
type RootInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Health  string `json:"health"`
	Metrics string `json:"metrics"`
}
