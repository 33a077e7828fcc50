// Package web wires the inbound HTTP surface: the gin engine, its
// middleware pipeline, templates, static assets and page handlers.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/pay-frontend/pkg/adminusers"
	"github.com/Sternrassler/pay-frontend/pkg/cache"
	"github.com/Sternrassler/pay-frontend/pkg/config"
	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/metrics"
	"github.com/Sternrassler/pay-frontend/pkg/middleware"
	"github.com/Sternrassler/pay-frontend/pkg/response"
	"github.com/Sternrassler/pay-frontend/pkg/session"
	"github.com/Sternrassler/pay-frontend/pkg/tracing"
)

//go:embed templates
var templateFS embed.FS

//go:embed public
var publicFS embed.FS

// ChargeService is the subset of connector used by the page handlers.
type ChargeService interface {
	middleware.ChargeFinder
	FindChargeByToken(ctx context.Context, token, correlationID string) (*connector.Charge, error)
	DeleteToken(ctx context.Context, token, correlationID string) error
	UpdateChargeStatus(ctx context.Context, chargeID, status, correlationID string) error
	CancelCharge(ctx context.Context, chargeID, correlationID string) error
	PatchEmail(ctx context.Context, chargeID, email, correlationID string) error
}

// Deps are the collaborators of the web server.
type Deps struct {
	Charges      ChargeService
	Services     middleware.ServiceFinder
	ServiceCache cache.Cache[adminusers.Service]
	Sessions     *session.Store
	Features     config.Features
	Tracer       trace.Tracer
	Logger       zerolog.Logger
}

// Server is the payment frontend web server.
type Server struct {
	engine   *gin.Engine
	charges  ChargeService
	sessions *session.Store
	router   response.Router
	logger   zerolog.Logger
}

// NewServer builds the engine and registers all routes.
func NewServer(deps Deps) (*Server, error) {
	if deps.Charges == nil || deps.Services == nil || deps.ServiceCache == nil || deps.Sessions == nil {
		return nil, errors.New("charges, services, service cache and sessions are required")
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Tracer(nil)
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html", "templates/errors/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	public, err := fs.Sub(publicFS, "public")
	if err != nil {
		return nil, fmt.Errorf("public assets: %w", err)
	}

	router := response.NewHTMLRouter()
	engine := gin.New()
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		engine:   engine,
		charges:  deps.Charges,
		sessions: deps.Sessions,
		router:   router,
		logger:   deps.Logger,
	}

	engine.Use(
		middleware.Recovery(router, deps.Logger),
		middleware.CorrelationID(deps.Logger),
		middleware.Tracing(deps.Tracer),
		middleware.Metrics(),
		middleware.RequestLogger(deps.Logger, "/healthcheck", "/metrics"),
		middleware.Features(deps.Features),
	)

	engine.StaticFS("/public", http.FS(public))
	engine.GET("/healthcheck", s.handleHealthcheck)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	journey := engine.Group("/", middleware.Session(deps.Sessions))
	journey.GET("/secure/:chargeTokenId", s.handleSecure)

	card := journey.Group("/card_details/:"+middleware.ChargeParam,
		middleware.ResolveCharge(deps.Charges, router, deps.Logger),
		middleware.ServiceMetadata(deps.Services, deps.ServiceCache, router, deps.Logger),
	)
	card.GET("", s.handleChargeShow)
	card.POST("/email", s.handleEmail)
	card.POST("/cancel", s.handleCancel)

	engine.NoRoute(func(c *gin.Context) {
		router.Response(c, response.NotFound, nil)
	})

	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}
