package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/domain"
)

func (s *Server) handleReportPosition(c *gin.Context) {
	var sample domain.PositionSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := s.pipe.ReportPosition(c.Request.Context(), &sample); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleProvisionTracker(c *gin.Context) {
	var t domain.Tracker
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := s.registry.Provision(t); err != nil {
		writeError(c, err)
		return
	}
	s.log.Info().Str("tracker_id", t.ID).Msg("tracker provisioned")
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleListTrackers(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Snapshots())
}

func (s *Server) handleGetTracker(c *gin.Context) {
	id := c.Param("id")
	cfg, err := s.registry.Config(id)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"config": cfg}
	if snap, ok := s.registry.Snapshot(id); ok {
		resp["snapshot"] = snap
	}
	c.JSON(http.StatusOK, resp)
}

// timeRange parses the start/end query params, defaulting to the last
// 24 hours.
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
			return start, end, false
		}
		start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
			return start, end, false
		}
		end = t
	}
	return start, end, true
}

func (s *Server) handleTrack(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.analytics.Track(c.Param("id"), start, end))
}

func (s *Server) handleSimplify(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	epsilon, err := strconv.ParseFloat(c.DefaultQuery("epsilon_m", "25"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid epsilon_m"})
		return
	}

	points, err := s.analytics.Simplify(c.Param("id"), start, end, epsilon)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) handleTravelStats(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.analytics.TravelStats(c.Param("id"), start, end))
}

func (s *Server) handleDailyMileage(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.analytics.DailyMileage(c.Param("id"), start, end))
}

func (s *Server) handleCreateGeofence(c *gin.Context) {
	var g domain.Geofence
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := s.fences.Put(g); err != nil {
		writeError(c, err)
		return
	}
	s.log.Info().Str("geofence_id", g.ID).Str("shape", string(g.Shape)).Msg("geofence stored")
	c.JSON(http.StatusCreated, g)
}

func (s *Server) handleListGeofences(c *gin.Context) {
	c.JSON(http.StatusOK, s.fences.List())
}

func (s *Server) handleGetGeofence(c *gin.Context) {
	g, err := s.fences.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleUpdateGeofence(c *gin.Context) {
	var g domain.Geofence
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	g.ID = c.Param("id")

	if _, err := s.fences.Get(g.ID); err != nil {
		writeError(c, err)
		return
	}
	if err := s.fences.Put(g); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleDeleteGeofence(c *gin.Context) {
	if err := s.fences.Remove(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAssignGeofence(c *gin.Context) {
	geofenceID := c.Param("id")
	trackerID := c.Param("trackerID")

	if _, err := s.registry.Config(trackerID); err != nil {
		writeError(c, err)
		return
	}
	if err := s.fences.Assign(geofenceID, trackerID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"geofence_id": geofenceID, "tracker_id": trackerID})
}

func (s *Server) handleUnassignGeofence(c *gin.Context) {
	if err := s.fences.Unassign(c.Param("id"), c.Param("trackerID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	trackerID := c.Query("tracker_id")
	status := domain.AlertStatus(c.Query("status"))
	c.JSON(http.StatusOK, s.alerts.List(trackerID, status))
}

func (s *Server) handleGetAlert(c *gin.Context) {
	a, err := s.alerts.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleAlertStatus(c *gin.Context) {
	var req struct {
		Status domain.AlertStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	actor := c.GetString("identity")
	a, err := s.alerts.UpdateStatus(c.Param("id"), req.Status, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	if s.archive != nil {
		if err := s.archive.UpdateAlertStatus(c.Request.Context(), a); err != nil {
			s.log.Warn().Err(err).Str("alert_id", a.ID).Msg("alert status archive failed")
		}
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleExternalAlert(c *gin.Context) {
	var req struct {
		TrackerID string          `json:"tracker_id"`
		Message   string          `json:"message"`
		Severity  domain.Severity `json:"severity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if req.TrackerID == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tracker_id and message are required"})
		return
	}
	if _, err := s.registry.Config(req.TrackerID); err != nil {
		writeError(c, err)
		return
	}

	a := s.alerts.External(req.TrackerID, req.Message, req.Severity)
	s.pipe.PublishAlert(a)
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	sess, err := s.hub.Connect(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.hub.Disconnect(sess)
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	go s.hub.ServeConn(conn, sess, hubConnOptions(s.cfg))
}
