package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fleetplane/internal/auth"
	"fleetplane/internal/config"
	"fleetplane/internal/db"
	"fleetplane/internal/events"
	"fleetplane/internal/integration"
	"fleetplane/internal/panel"
)

// ============================================================================
// OPS API SERVER
// ============================================================================

// Server is the operator-facing HTTP surface: login, health, fleet status,
// telemetry history, and a WebSocket event stream. All collaborators are
// injected; History may be nil when the history store is disabled.
type Server struct {
	cfg      *config.Config
	auth     *auth.Service
	facade   *integration.Integration
	client   *panel.Client
	hub      *events.Hub
	history  *db.History
	dbSvc    *db.Service
	streamer *Streamer

	engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg *config.Config, authSvc *auth.Service, facade *integration.Integration,
	client *panel.Client, hub *events.Hub, history *db.History, dbSvc *db.Service) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     authSvc,
		facade:   facade,
		client:   client,
		hub:      hub,
		history:  history,
		dbSvc:    dbSvc,
		streamer: NewStreamer(hub),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := gin.Default()
	s.engine = r

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	api := r.Group("/api/v1")

	api.POST("/login", s.auth.LoginHandler)
	api.GET("/health", s.healthHandler)

	protected := api.Group("", s.auth.Middleware())
	{
		protected.GET("/status", s.statusHandler)
		protected.GET("/fleet", s.fleetHandler)
		protected.GET("/metrics", s.metricsHandler)
		protected.GET("/servers/:uuid/history", s.historyHandler)
	}

	r.GET("/ws/events", s.auth.Middleware(), s.streamer.ServeWS)
}

// Start begins serving. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.APIAddr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("[API] listening on %s", s.cfg.APIAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	log.Println("[API] shutting down")
	return s.http.Shutdown(ctx)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) healthHandler(c *gin.Context) {
	health := s.facade.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if health.Overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.facade.GetStatus(c.Request.Context()))
}

func (s *Server) fleetHandler(c *gin.Context) {
	overview, err := s.facade.FleetOverview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) metricsHandler(c *gin.Context) {
	metrics := gin.H{
		"panel":  s.client.Metrics().Snapshot(),
		"events": s.hub.Snapshot(),
		"stream": s.streamer.Metrics(),
		"auth":   s.auth.Metrics(),
	}
	if s.dbSvc != nil {
		metrics["db"] = s.dbSvc.Metrics()
	}
	c.JSON(http.StatusOK, metrics)
}

func (s *Server) historyHandler(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history store is disabled"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	samples, err := s.history.GetRecent(c.Request.Context(), c.Param("uuid"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_uuid": c.Param("uuid"),
		"count":       len(samples),
		"samples":     samples,
	})
}
