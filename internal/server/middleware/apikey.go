package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// NewAPIKeyMiddleware guards the administrative endpoints. The Authorization
// header must equal one of the configured shared secrets exactly; any failure
// produces the same opaque 403 so a caller learns nothing about which part of
// the check failed.
func NewAPIKeyMiddleware(logger *slog.Logger, keys []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("Authorization")
			if presented != "" {
				for _, key := range keys {
					if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			var ip string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}
			logger.Warn("Rejected admin request with invalid API key", slog.String("ip", ip))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "Forbidden: Invalid API Key"}`))
		})
	}
}
