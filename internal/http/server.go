// Package httpapp wires the JSON API onto echo.
package httpapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/http/authn"
	"github.com/leadsuccess/dynamics-bridge/internal/http/handlers"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h        *handlers.Handlers
	e        *echo.Echo
	sessions *scs.SessionManager
	server   *http.Server
}

// NewEchoServer creates a new HTTP server around the shared handler set.
func NewEchoServer(h *handlers.Handlers) (*EchoServer, error) {
	es := &EchoServer{h: h, e: echo.New(), sessions: h.Sessions}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.registerRoutes()
	return es, nil
}

// httpErrorHandler renders every unhandled error as the JSON envelope
// without leaking internals.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if res, uerr := echo.UnwrapResponse(c.Response()); uerr == nil && res.Committed {
		return
	}
	var he echo.HTTPStatusCoder
	if errors.As(err, &he) {
		code := he.StatusCode()
		_ = handlers.JSONError(c, code, handlers.ErrorBodyForStatus(code))
		return
	}
	_ = es.h.WriteError(c, err)
}

func (es *EchoServer) registerRoutes() {
	if es.sessions != nil {
		es.e.Use(echo.WrapMiddleware(es.sessions.LoadAndSave))
	}

	es.e.GET("/healthz", es.h.HandleHealthz)
	es.e.POST("/api/login", es.h.HandleLoginPost)

	// The OAuth redirect lands here from the identity provider's browser
	// window, outside the operator session.
	es.e.GET("/api/dynamics/callback", es.h.HandleDynamicsCallback)

	api := es.e.Group("/api")
	api.Use(authn.RequireAuth(es.sessions, es.h.Store))
	api.POST("/logout", es.h.HandleLogoutPost)
	api.GET("/me", es.h.HandleMe)

	api.GET("/dynamics/config", es.h.HandleConfigGet)
	api.PUT("/dynamics/config", es.h.HandleConfigPut)
	api.DELETE("/dynamics/config", es.h.HandleConfigDelete)

	api.GET("/dynamics/status", es.h.HandleDynamicsStatus)
	api.POST("/dynamics/connect", es.h.HandleDynamicsConnect)
	api.POST("/dynamics/disconnect", es.h.HandleDynamicsDisconnect)
	api.POST("/dynamics/session", es.h.HandleDynamicsSession)
	api.POST("/dynamics/test", es.h.HandleDynamicsTest)

	api.POST("/transfer", es.h.HandleTransferPost)
	api.GET("/transfers", es.h.HandleTransfersGet)
}

// Start starts the HTTP server.
func (es *EchoServer) Start(addr string) error {
	return es.e.Start(addr)
}

// StartServer starts the HTTP server with a custom http.Server.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.server = server
	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.server == nil {
		return nil
	}
	return es.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}
