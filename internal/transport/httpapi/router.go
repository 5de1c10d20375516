// Package httpapi exposes the REST and WebSocket surface on gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fleettrack/internal/alert"
	"fleettrack/internal/auth"
	"fleettrack/internal/config"
	"fleettrack/internal/domain"
	"fleettrack/internal/geofence"
	"fleettrack/internal/history"
	"fleettrack/internal/hub"
	"fleettrack/internal/metrics"
	"fleettrack/internal/pipeline"
	"fleettrack/internal/state"
)

// AlertStatusArchive mirrors alert lifecycle transitions into the
// durable archive. Best-effort: a failed mirror never blocks the API.
type AlertStatusArchive interface {
	UpdateAlertStatus(ctx context.Context, a domain.Alert) error
}

type Server struct {
	cfg       *config.Config
	pipe      *pipeline.Pipeline
	registry  *state.Registry
	fences    *geofence.Index
	alerts    *alert.Engine
	analytics *history.Service
	hub       *hub.Hub
	validator *auth.Validator
	archive   AlertStatusArchive // optional
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// SetAlertArchive wires the optional durable alert archive.
func (s *Server) SetAlertArchive(a AlertStatusArchive) { s.archive = a }

func NewServer(
	cfg *config.Config,
	pipe *pipeline.Pipeline,
	registry *state.Registry,
	fences *geofence.Index,
	alerts *alert.Engine,
	analytics *history.Service,
	h *hub.Hub,
	validator *auth.Validator,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		pipe:      pipe,
		registry:  registry,
		fences:    fences,
		alerts:    alerts,
		analytics: analytics,
		hub:       h,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapF(metrics.HandleMetrics))
	r.GET("/ws", s.handleWS)

	api := r.Group("/api/v1", s.authMiddleware())
	{
		api.POST("/positions", s.handleReportPosition)

		api.POST("/trackers", s.handleProvisionTracker)
		api.GET("/trackers", s.handleListTrackers)
		api.GET("/trackers/:id", s.handleGetTracker)
		api.GET("/trackers/:id/track", s.handleTrack)
		api.GET("/trackers/:id/simplify", s.handleSimplify)
		api.GET("/trackers/:id/stats", s.handleTravelStats)
		api.GET("/trackers/:id/mileage", s.handleDailyMileage)

		api.POST("/geofences", s.handleCreateGeofence)
		api.GET("/geofences", s.handleListGeofences)
		api.GET("/geofences/:id", s.handleGetGeofence)
		api.PUT("/geofences/:id", s.handleUpdateGeofence)
		api.DELETE("/geofences/:id", s.handleDeleteGeofence)
		api.POST("/geofences/:id/trackers/:trackerID", s.handleAssignGeofence)
		api.DELETE("/geofences/:id/trackers/:trackerID", s.handleUnassignGeofence)

		api.GET("/alerts", s.handleListAlerts)
		api.GET("/alerts/:id", s.handleGetAlert)
		api.PATCH("/alerts/:id/status", s.handleAlertStatus)
		api.POST("/alerts/external", s.handleExternalAlert)
	}

	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Token")
		if token == "" {
			token = c.Query("token")
		}
		identity, err := s.validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("identity", identity)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.hub.SessionCount(),
	})
}

func hubConnOptions(cfg *config.Config) hub.ConnOptions {
	return hub.ConnOptions{
		WriteTimeout: cfg.WriteTimeout,
		PongTimeout:  cfg.PongTimeout,
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrCapacityExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
