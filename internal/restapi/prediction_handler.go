package restapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/models"
)

func (api *RestAPI) singleStationPredictionHandler(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req models.SingleStationPredictionRequest
	if !api.decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		api.validationErrorResponse(w, r, errs)
		return
	}

	logger.Info("single station prediction request",
		slog.String("train_id", req.TrainID),
		slog.String("scheduled_departure_time", req.ScheduledDepartureTime),
		slog.String("trip_date", req.TripDate))

	resp, err := api.ModelService.PredictSingleStation(r.Context(), req)
	if err != nil {
		api.predictionErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, http.StatusOK, resp)
}

// batchPredictionHandler runs every item in order. A failing item becomes an
// error entry at the same index and the batch carries on.
func (api *RestAPI) batchPredictionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := logging.FromContext(r.Context())

	var req models.BatchPredictionRequest
	if !api.decodeJSON(w, r, &req) {
		return
	}
	if req.Predictions == nil {
		api.validationErrorResponse(w, r, models.ValidationErrors{{
			Loc:  []string{"body", "predictions"},
			Msg:  "field required",
			Type: "value_error.missing",
		}})
		return
	}

	kind := req.Type()
	logger.Info("batch prediction request",
		slog.Int("items", len(req.Predictions)),
		slog.String("prediction_type", string(kind)))

	resp := models.BatchPredictionResponse{
		Predictions: make([]any, 0, len(req.Predictions)),
	}
	for i, raw := range req.Predictions {
		result, err := api.predictBatchItem(r, kind, raw)
		if err != nil {
			logging.LogError(logger, "batch item failed", err, slog.Int("item_index", i))
			resp.Predictions = append(resp.Predictions, models.NewBatchItemError(err, i, api.now()))
			resp.FailedPredictions++
			api.countBatchItem("failure")
			continue
		}
		resp.Predictions = append(resp.Predictions, result)
		resp.SuccessfulPredictions++
		api.countBatchItem("success")
	}
	resp.TotalProcessingTimeMs = scalar.Round(float64(time.Since(start).Nanoseconds())/1e6, 2)

	api.sendResponse(w, r, http.StatusOK, resp)
}

func (api *RestAPI) predictBatchItem(r *http.Request, kind models.PredictionType, raw []byte) (any, error) {
	item, err := models.DecodeBatchItem(kind, raw)
	if err != nil {
		return nil, err
	}
	switch it := item.(type) {
	case models.SingleStationPredictionRequest:
		return api.ModelService.PredictSingleStation(r.Context(), it)
	default:
		return nil, fmt.Errorf("unknown prediction type: %s", item.Kind())
	}
}

func (api *RestAPI) countBatchItem(outcome string) {
	if api.Metrics != nil {
		api.Metrics.BatchItems.WithLabelValues(outcome).Inc()
	}
}
