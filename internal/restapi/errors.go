package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/models"
	"oncycle.org/delay-api/internal/service"
)

const maxBodyBytes = 1 << 20

// sendResponse writes v as JSON with the given status.
func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

func (api *RestAPI) detailResponse(w http.ResponseWriter, r *http.Request, status int, detail any) {
	api.sendResponse(w, r, status, models.DetailResponse{Detail: detail})
}

// validationErrorResponse sends a 422 with one entry per invalid field
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, errs models.ValidationErrors) {
	api.detailResponse(w, r, http.StatusUnprocessableEntity, errs)
}

func (api *RestAPI) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	api.detailResponse(w, r, http.StatusNotFound, "Not Found")
}

func (api *RestAPI) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	api.detailResponse(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// predictionErrorResponse maps a service error to its HTTP status. Models
// that are not loaded give 503, anything else 500.
func (api *RestAPI) predictionErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrModelsNotLoaded) {
		api.detailResponse(w, r, http.StatusServiceUnavailable, capitalize(err.Error()))
		return
	}
	msg := strings.TrimPrefix(err.Error(), service.ErrPredictionFailed.Error()+": ")
	api.detailResponse(w, r, http.StatusInternalServerError, "Prediction failed: "+msg)
}

// decodeJSON reads a single JSON object from the request body into dst. On
// failure it has already written a 422 and returns false.
func (api *RestAPI) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		api.validationErrorResponse(w, r, models.ValidationErrors{{
			Loc:  []string{"body"},
			Msg:  bodyErrorMessage(err),
			Type: "value_error.jsondecode",
		}})
		return false
	}
	if dec.More() {
		api.validationErrorResponse(w, r, models.ValidationErrors{{
			Loc:  []string{"body"},
			Msg:  "body must contain a single JSON object",
			Type: "value_error.jsondecode",
		}})
		return false
	}
	return true
}

func bodyErrorMessage(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "body must not be empty"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON"
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("field %s must be of type %s", typeErr.Field, typeErr.Type)
		}
		return fmt.Sprintf("body must be of type %s", typeErr.Type)
	case errors.As(err, &maxErr):
		return fmt.Sprintf("body must not be larger than %d bytes", maxErr.Limit)
	default:
		return err.Error()
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
