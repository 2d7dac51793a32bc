package restapi

import (
	"net/http"

	"oncycle.org/delay-api/internal/models"
)

func (api *RestAPI) rootHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, http.StatusOK, models.RootInfo{
		Message: api.Config.AppName,
		Version: api.Config.Version,
		Health:  healthPath,
		Metrics: metricsPath,
	})
}

// healthHandler reports liveness only; it never looks at the models.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, http.StatusOK, models.NewAPIHealth(api.now()))
}

func (api *RestAPI) modelHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !api.ModelService.Ready() {
		api.detailResponse(w, r, http.StatusServiceUnavailable, models.ModelReadiness{Status: models.StatusNotReady})
		return
	}
	api.sendResponse(w, r, http.StatusOK, models.ModelReadiness{Status: models.StatusReady})
}

func (api *RestAPI) modelInfoHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, http.StatusOK, api.ModelService.Info())
}
