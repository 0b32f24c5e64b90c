package server

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/coder/websocket"
)

// GateCloseCode is sent for every security-gate rejection, with a
// human-readable reason.
const GateCloseCode = websocket.StatusCode(4001)

// Violation describes why the gate refused an upgrade.
type Violation struct {
	Code   websocket.StatusCode
	Reason string
}

// Gate is the stateless pre-handshake filter. It rejects upgrade requests
// from foreign origins and requests carrying no session credential at all,
// before any authorization backend call is made.
type Gate struct {
	allowedOrigins []string
	logger         *slog.Logger
}

func NewGate(logger *slog.Logger, allowedOrigins []string) *Gate {
	return &Gate{
		allowedOrigins: allowedOrigins,
		logger:         logger.With(slog.String("component", "security_gate")),
	}
}

// Check inspects the upgrade request and returns nil when it may proceed.
// Origin matching is exact and case-sensitive.
func (g *Gate) Check(r *http.Request) *Violation {
	origin := r.Header.Get("Origin")
	if origin == "" || !slices.Contains(g.allowedOrigins, origin) {
		g.logger.Warn("CORS violation on websocket upgrade",
			slog.String("origin", origin),
			slog.String("url", r.RequestURI),
		)
		return &Violation{Code: GateCloseCode, Reason: "Origin not allowed"}
	}

	if r.Header.Get("Cookie") == "" {
		g.logger.Warn("Websocket upgrade without cookies",
			slog.String("userAgent", r.UserAgent()),
			slog.String("url", r.RequestURI),
		)
		return &Violation{Code: GateCloseCode, Reason: "No cookies"}
	}

	return nil
}
