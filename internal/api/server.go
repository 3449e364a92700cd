// Package api exposes the wactl control-plane HTTP surface. Handlers read
// registry snapshots and call coordinator operations; they never touch the
// protocol engine directly.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/barok/wactl/internal/observability"
	"github.com/barok/wactl/internal/session"
)

const version = "0.1.0"

// Config shapes the HTTP server.
type Config struct {
	Name            string
	Addr            string
	CorsOrigins     []string
	AccountDomain   string
	RegisterTimeout time.Duration
}

// Server owns the gin router and delegates to the session coordinator.
type Server struct {
	cfg     Config
	coord   *session.Coordinator
	router  *gin.Engine
	started time.Time
}

func NewServer(cfg Config, coord *session.Coordinator) *Server {
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = 60 * time.Second
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(log.Logger))
	router.Use(observability.RequestMetricsMiddleware(cfg.Name))
	router.Use(cors.New(corsConfig(cfg.CorsOrigins)))

	s := &Server{
		cfg:     cfg,
		coord:   coord,
		router:  router,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Any-origin plus DELETE/PUT keeps existing dashboards working against
// a localhost deployment.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Router exposes the handler tree for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Addr).Str("node", s.cfg.Name).Msg("api listening")
	return s.router.Run(s.cfg.Addr)
}
