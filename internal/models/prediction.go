package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"oncycle.org/delay-api/internal/utils"
)

// PredictionType is the prediction kind exposed by the API
type PredictionType string

const (
	PredictionTypeSingleStation PredictionType = "single_station"
)

// SingleStationPredictionRequest Request for a single station ahead prediction
type SingleStationPredictionRequest struct {
	TrainID                string `json:"train_id"`
	ScheduledDepartureTime string `json:"scheduled_departure_time"`
	TripDate               string `json:"trip_date"`
}

// Kind reports the variant of the batch item union
func (r SingleStationPredictionRequest) Kind() PredictionType {
	return PredictionTypeSingleStation
}

// Normalize strips markup and surrounding whitespace from every field
func (r *SingleStationPredictionRequest) Normalize() {
	r.TrainID = utils.SanitizeInput(r.TrainID)
	r.ScheduledDepartureTime = utils.SanitizeInput(r.ScheduledDepartureTime)
	r.TripDate = utils.SanitizeInput(r.TripDate)
}

// Validate checks every field and returns the problems found, in field order
func (r SingleStationPredictionRequest) Validate() ValidationErrors {
	fieldErrors := utils.ValidateTripParams(r.TrainID, r.ScheduledDepartureTime, r.TripDate)
	return newValidationErrors(fieldErrors, "train_id", "scheduled_departure_time", "trip_date")
}

// PredictionResult Single prediction result
type PredictionResult struct {
	ScheduledDepartureTime string   `json:"scheduled_departure_time"`
	ArrivalDelay           float64  `json:"arrival_delay"`
	DepartureDelay         *float64 `json:"departure_delay"`
	StartStation           string   `json:"start_station"`
	NextStation            string   `json:"next_station"`
}

// SingleStationPredictionResponse Response for a single station prediction
type SingleStationPredictionResponse struct {
	PredictionType   PredictionType   `json:"prediction_type"`
	Result           PredictionResult `json:"result"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
	ModelVersion     string           `json:"model_version"`
	ModelAccuracy    float64          `json:"model_accuracy"`
	ModelError       float64          `json:"model_error"`
}

// BatchItem is one decoded entry of a batch request. The concrete type is
// selected by the batch prediction type.
type BatchItem interface {
	Kind() PredictionType
	Validate() ValidationErrors
}

// BatchPredictionRequest Request for batch predictions. Items stay raw until
// the prediction type selects their shape.
type BatchPredictionRequest struct {
	Predictions    []json.RawMessage `json:"predictions"`
	PredictionType PredictionType    `json:"prediction_type"`
}

// Type returns the batch prediction type, defaulting to single station
func (b BatchPredictionRequest) Type() PredictionType {
	if b.PredictionType == "" {
		return PredictionTypeSingleStation
	}
	return b.PredictionType
}

// DecodeBatchItem decodes raw into the variant named by t and validates it
func DecodeBatchItem(t PredictionType, raw json.RawMessage) (BatchItem, error) {
	switch t {
	case PredictionTypeSingleStation:
		var req SingleStationPredictionRequest
		if err := decodeObject(raw, &req); err != nil {
			return nil, err
		}
		req.Normalize()
		if verrs := req.Validate(); len(verrs) > 0 {
			return nil, verrs
		}
		return req, nil
	default:
		return nil, fmt.Errorf("unknown prediction type: %s", t)
	}
}

// decodeObject decodes a JSON object. Null and non object values are
// rejected.
func decodeObject(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("prediction item must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid prediction item: %w", err)
	}
	return nil
}

// BatchPredictionResponse Response for batch predictions. Each entry is
// either a *SingleStationPredictionResponse or an ErrorResponse.
type BatchPredictionResponse struct {
	Predictions           []any   `json:"predictions"`
	TotalProcessingTimeMs float64 `json:"total_processing_time_ms"`
	SuccessfulPredictions int     `json:"successful_predictions"`
	FailedPredictions     int     `json:"failed_predictions"`
}

// ValidationError describes one invalid request field
type ValidationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationErrors is returned when a request body fails validation
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	msg := v[0].Loc[len(v[0].Loc)-1] + ": " + v[0].Msg
	if len(v) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(v)-1)
	}
	return msg
}

func newValidationErrors(fieldErrors map[string][]string, order ...string) ValidationErrors {
	if len(fieldErrors) == 0 {
		return nil
	}

	fields := append([]string(nil), order...)
	known := make(map[string]bool, len(order))
	for _, f := range order {
		known[f] = true
	}
	var extra []string
	for f := range fieldErrors {
		if !known[f] {
			extra = append(extra, f)
		}
	}
	sort.Strings(extra)
	fields = append(fields, extra...)

	var out ValidationErrors
	for _, f := range fields {
		for _, msg := range fieldErrors[f] {
			out = append(out, ValidationError{
				Loc:  []string{"body", f},
				Msg:  msg,
				Type: "value_error",
			})
		}
	}
	return out
}
