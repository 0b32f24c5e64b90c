package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/norfolkpine/collab-gateway/internal/authz"
	"github.com/norfolkpine/collab-gateway/internal/metrics"
	"github.com/norfolkpine/collab-gateway/internal/server/middleware"
	"github.com/norfolkpine/collab-gateway/internal/session"
	"github.com/norfolkpine/collab-gateway/pkg/config"
	"github.com/norfolkpine/collab-gateway/pkg/crdt"
	"github.com/norfolkpine/collab-gateway/pkg/protocol"
	"github.com/norfolkpine/collab-gateway/pkg/state"
	"github.com/norfolkpine/collab-gateway/pkg/state/registry"
	"github.com/norfolkpine/collab-gateway/pkg/transport"
)

type App struct {
	logger    *slog.Logger
	registry  state.Registry
	handshake *session.Handshake
	gate      *Gate
	wg        sync.WaitGroup
	http      *http.Server
	config    *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	engine := crdt.NewUpdateLog()
	reg := registry.NewInMemoryRegistry(logger, engine, func(u crdt.Update) []byte {
		return protocol.EncodeUpdate(u)
	})
	authzClient := authz.NewClient(logger, authz.Config{
		BaseURL:      cfg.Backend.BaseURL,
		IdentityPath: cfg.Backend.IdentityPath,
		DocumentPath: cfg.Backend.DocumentPath,
		Timeout:      cfg.Backend.Timeout,
	})

	app := &App{
		logger:    logger,
		registry:  reg,
		handshake: session.NewHandshake(logger, authzClient, cfg.Server.Production()),
		gate:      NewGate(logger, cfg.Server.AllowedOrigins()),
		config:    cfg,
		ctx:       rootCtx,
	}

	mux := http.NewServeMux()
	mux.Handle("/collaboration/ws/",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
		),
	)
	mux.Handle("/collaboration/reset-connections/",
		middleware.Chain(http.HandlerFunc(app.handleResetConnections),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAPIKeyMiddleware(logger, cfg.Server.APIKeySet()),
		),
	)
	mux.HandleFunc("/ping", app.handlePing)
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.Chain(mux, middleware.NewCORS(cfg.Server.AllowedOrigins()))
	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handler,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	// Origin policy is owned by the security gate below, not the library.
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// The gate is part of the production auth story; dev mode accepts
	// anything, matching the handshake bypass.
	if a.config.Server.Production() {
		if v := a.gate.Check(r); v != nil {
			metrics.GateRejections.WithLabelValues(v.Reason).Inc()
			wsConn.Close(v.Code, v.Reason)
			return
		}
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{ReadTimeout: a.config.Transport.ReadTimeout},
		reqMeta.IP,
		a.logger,
	)
	session.New(a.logger, a.registry, a.handshake, conn, session.Request{
		RoomParam:  r.URL.Query().Get("room"),
		Headers:    r.Header.Clone(),
		RemoteAddr: reqMeta.IP,
		UserAgent:  reqMeta.UserAgent,
		URL:        reqMeta.URI,
	}, a.config.Transport.HandshakeTimeout)

	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Force-close every room so no connection lingers past the HTTP drain.
	a.logger.Info("Closing all active rooms...")
	for _, room := range a.registry.Rooms() {
		a.registry.CloseRoom(room.Name)
	}

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}

// Handler returns the app's fully-composed HTTP handler, routes and
// middleware included.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

// Registry returns the app's session registry handle.
func (a *App) Registry() state.Registry {
	return a.registry
}
