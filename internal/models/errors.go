package models

import "time"

// ErrorCodePredictionFailed marks a failed batch item
const ErrorCodePredictionFailed = "PREDICTION_FAILED"

// ErrorResponse Error entry of a batch response
type ErrorResponse struct {
	Error     string         `json:"error"`
	ErrorCode string         `json:"error_code"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewBatchItemError builds the error entry for the batch item at index
func NewBatchItemError(err error, index int, now time.Time) ErrorResponse {
	return ErrorResponse{
		Error:     err.Error(),
		ErrorCode: ErrorCodePredictionFailed,
		Details:   map[string]any{"item_index": index},
		Timestamp: now,
	}
}

// DetailResponse Error body carrying a single detail value, a message or an
// object
type DetailResponse struct {
	Detail any `json:"detail"`
}
