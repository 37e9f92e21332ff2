package middleware

import (
	"net/http"
	"strings"
)

const (
	adminCORSHeaders = "Authorization, Content-Type"
	adminCORSMethods = "GET, POST, PUT, OPTIONS"
)

// AdminCORS lets a browser dashboard on one of origins call the admin API.
// "*" echoes any origin. With no origins the middleware is a pass-through.
// Preflight requests are answered here so they never reach AdminJWT.
func AdminCORS(origins []string) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allowed[origin] = struct{}{}
		}
	}
	originAllowed := func(origin string) bool {
		if origin == "" {
			return false
		}
		_, ok := allowed[origin]
		return allowAny || ok
	}

	return func(next http.Handler) http.Handler {
		if !allowAny && len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			w.Header().Add("Vary", "Origin")
			if !originAllowed(origin) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Headers", adminCORSHeaders)
			h.Set("Access-Control-Allow-Methods", adminCORSMethods)
			h.Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
