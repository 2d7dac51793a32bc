package restapi

import (
	"net/http"
	"slices"
	"strconv"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-API-Key, X-Request-ID"
	corsMaxAge       = 600
)

// WithSecurityHeaders wraps the given handler with security headers and the
// CORS policy built from the configured origins.
func (api *RestAPI) WithSecurityHeaders(handler http.Handler) http.Handler {
	return securityHeaders(api.Config.Server.AllowedOrigins)(handler)
}

// securityHeaders adds the security headers to every response and answers
// CORS preflight requests. An origin list containing "*" admits any origin.
func securityHeaders(allowedOrigins []string) func(http.Handler) http.Handler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	allowed := func(origin string) bool {
		return anyOrigin || slices.Contains(allowedOrigins, origin)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")

			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && origin != "" &&
				r.Header.Get("Access-Control-Request-Method") != ""

			if origin != "" {
				h.Add("Vary", "Origin")
				if !allowed(origin) {
					if preflight {
						http.Error(w, "Disallowed CORS origin", http.StatusBadRequest)
						return
					}
					next.ServeHTTP(w, r)
					return
				}
				// Credentials are allowed, so the origin is echoed rather than "*"
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				if origin != "" {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				}
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
