package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"terminal-core/internal/automation"
	"terminal-core/internal/capability"
	"terminal-core/internal/contract"
	"terminal-core/internal/events"
	"terminal-core/internal/order"
	"terminal-core/pkg/db"
)

// Server wires the dashboard HTTP endpoints around the event bus.
type Server struct {
	Router     *gin.Engine
	Bus        *events.Bus
	DB         *db.Database
	Automation *automation.Engine
	Resolver   *capability.Resolver
	Tracker    *contract.Tracker
	Submitter  *order.Submitter
	Currency   string
	JWTSecret  string
	Meta       SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbols    []string
	TerminalID string
	Version    string
}

func NewServer(bus *events.Bus, database *db.Database, auto *automation.Engine, resolver *capability.Resolver, tracker *contract.Tracker, submitter *order.Submitter, currency, jwtSecret string, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		Bus:        bus,
		DB:         database,
		Automation: auto,
		Resolver:   resolver,
		Tracker:    tracker,
		Submitter:  submitter,
		Currency:   currency,
		JWTSecret:  jwtSecret,
		Meta:       meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.register)
			auth.POST("/login", s.login)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/system/status", s.getSystemStatus)

			protected.GET("/sessions", s.listSessions)
			protected.POST("/sessions", s.createSession)
			protected.GET("/sessions/:id", s.getSession)
			protected.POST("/sessions/:id/start", s.startSession)
			protected.POST("/sessions/:id/stop", s.stopSession)
			protected.PUT("/sessions/:id/symbol", s.switchSymbol)
			protected.GET("/sessions/:id/signals", s.listSignals)

			protected.GET("/capabilities/:symbol", s.getCapabilities)
			protected.POST("/orders", s.submitManualOrder)
			protected.GET("/contract", s.getTrackedContract)
		}
	}
}
