package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	healthPath  = "/health/"
	metricsPath = "/metrics"
)

// Routes registers every endpoint on a fresh router.
func (api *RestAPI) Routes() *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(api.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(api.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/", api.rootHandler)
	router.HandlerFunc(http.MethodGet, healthPath, api.healthHandler)
	router.HandlerFunc(http.MethodGet, "/health/model", api.modelHealthHandler)

	router.HandlerFunc(http.MethodPost, "/api/v1/predict/single-station", api.singleStationPredictionHandler)
	router.HandlerFunc(http.MethodPost, "/api/v1/predict/batch", api.batchPredictionHandler)
	router.HandlerFunc(http.MethodGet, "/api/v1/models/info", api.modelInfoHandler)

	router.Handler(http.MethodGet, metricsPath, promhttp.HandlerFor(api.Registry, promhttp.HandlerOpts{
		ErrorLog: promErrorLog{api},
	}))

	return router
}

// promErrorLog routes promhttp errors to the structured logger.
type promErrorLog struct{ api *RestAPI }

func (l promErrorLog) Println(v ...any) {
	l.api.Logger.Error("metrics exposition failed", "error", v)
}
