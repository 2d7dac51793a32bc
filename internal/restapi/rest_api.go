package restapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"oncycle.org/delay-api/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
	now         func() time.Time
}

// NewRestAPI creates a new RestAPI instance with initialized rate limiter
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.Server.RateLimit, time.Second),
		now:         time.Now,
	}
}

// Handler returns the routes wrapped in the full middleware chain. The
// outermost layer runs first.
func (api *RestAPI) Handler() http.Handler {
	var h http.Handler = api.Routes()
	h = api.rateLimiter.Handler(h)
	h = CompressionMiddleware(h)
	h = api.WithSecurityHeaders(h)
	h = middleware.Recoverer(h)
	h = NewRequestLoggingMiddleware(api.Logger)(h)
	return h
}

// Close releases the background resources held by the middleware.
func (api *RestAPI) Close() {
	api.rateLimiter.Stop()
}
