// Package server exposes the issuance pipeline to the host platform over
// HTTP. It is a thin translation layer: all business rules live in the
// lifecycle controller.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rezonia/einvoice/internal/lifecycle"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// Server is the HTTP API server
type Server struct {
	config     *Config
	router     *gin.Engine
	controller *lifecycle.Controller
	log        zerolog.Logger
}

// NewServer creates a new API server around a lifecycle controller
func NewServer(config *Config, controller *lifecycle.Controller, log zerolog.Logger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config:     config,
		router:     router,
		controller: controller,
		log:        log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1/tenants/:tenant")
	{
		v1.POST("/invoices", s.handleCreateDraft)
		v1.GET("/invoices/:id", s.handleGetInvoice)
		v1.POST("/invoices/:id/send", s.handleSend)
		v1.POST("/invoices/:id/status", s.handleRefreshStatus)
		v1.POST("/invoices/:id/cancel", s.handleCancel)
		v1.GET("/inbox", s.handleInbox)
	}
}

// Router returns the underlying gin engine (used by tests)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.log.Info().Str("address", s.config.Address).Msg("starting invoice API server")
	return s.router.Run(s.config.Address)
}
