package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger logs one line per request from the metadata captured
// upstream in the chain. Websocket upgrades pass through here too, so the
// client address and user agent matter for tracing rejected sockets back to
// their origin.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip, uri, agent string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
				uri = reqMeta.URI
				agent = reqMeta.UserAgent
			}

			logger.Info("Handling request",
				slog.String("method", r.Method),
				slog.String("uri", uri),
				slog.String("ip", ip),
				slog.String("userAgent", agent),
			)
			next.ServeHTTP(w, r)
		})
	}
}
