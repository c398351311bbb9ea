package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oceanguard/hazard-fusion/internal/apperr"
	"github.com/oceanguard/hazard-fusion/internal/broadcaster"
	"github.com/oceanguard/hazard-fusion/internal/pipeline"
	"github.com/oceanguard/hazard-fusion/internal/store"
	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// defaultListLimit/maxListLimit bound GET /reports and /hazards pagination,
// same role as the teacher's maxScanBlocks cap on unbounded range requests.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// APIHandler holds the dependencies every route needs: the store, the
// pipeline that turns a saved report into a fused hazard event, and the
// broadcaster backing the SSE stream.
type APIHandler struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	bc       *broadcaster.Broadcaster
	hub      *broadcaster.Hub
}

// publish fans a topic/data pair out through the SSE broadcaster and the
// websocket Hub alike, so a /ws client sees the same admin/ingest events a
// /stream client does, not just the pipeline's own processing events.
func (h *APIHandler) publish(topic broadcaster.Topic, data interface{}) {
	h.bc.Publish(topic, data)
	if h.hub == nil {
		return
	}
	if frame, err := broadcaster.Frame(topic, data); err == nil {
		h.hub.Broadcast(frame)
	}
}

// SetupRouter wires the public, protected, and streaming route groups.
// CORS and auth middleware are carried forward from the teacher's
// routes.go/auth.go/ratelimit.go unchanged in shape.
func SetupRouter(st store.Store, pl *pipeline.Pipeline, bc *broadcaster.Broadcaster, hub *broadcaster.Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{store: st, pipeline: pl, bc: bc, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stats", handler.handleStats)
		pub.GET("/stream", handler.handleStream)
		pub.GET("/ws", hub.Subscribe)
		pub.POST("/reports", handler.handleSubmitReport)
		pub.POST("/emergency", handler.handleSubmitEmergency)
		pub.GET("/reports", handler.handleListReports)
		pub.GET("/hazards", handler.handleListHazards)
		pub.GET("/hazards/:id", handler.handleGetHazard)
		pub.GET("/bulletins", handler.handleListBulletins)
	}

	admin := r.Group("/api/v1")
	admin.Use(AuthMiddleware())
	admin.Use(NewRateLimiter(30, 5).Middleware())
	{
		admin.POST("/hazards/:id/validate", handler.handleValidateHazard)
	}

	return r
}

// submitReportRequest mirrors the original system's CitizenReport model —
// a source field defaulting to "citizen" and optional media metadata.
type submitReportRequest struct {
	Text          string   `json:"text" binding:"required"`
	Lat           float64  `json:"lat" binding:"required"`
	Lon           float64  `json:"lon" binding:"required"`
	Source        string   `json:"source"`
	MediaPaths    []string `json:"mediaPaths"`
	MediaVerified bool     `json:"mediaVerified"`
	GPSAccuracyM  *float64 `json:"gpsAccuracyM"`
	UserID        *int64   `json:"userId"`
	UserName      string   `json:"userName"`
}

func (h *APIHandler) handleSubmitReport(c *gin.Context) {
	var req submitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	source := models.SourceCitizen
	if req.Source != "" {
		source = models.ParseSourceKind(req.Source)
	}

	report := &models.Report{
		Source:        source,
		Text:          req.Text,
		Lat:           req.Lat,
		Lon:           req.Lon,
		Ts:            time.Now().UTC(),
		MediaPaths:    req.MediaPaths,
		HasMedia:      len(req.MediaPaths) > 0,
		MediaVerified: req.MediaVerified,
		GPSAccuracyM:  req.GPSAccuracyM,
		UserID:        req.UserID,
		UserName:      req.UserName,
	}

	id, err := h.store.SaveReport(c.Request.Context(), report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save report"})
		return
	}

	h.publish(broadcaster.TopicNewReport, gin.H{
		"id":     id,
		"lat":    req.Lat,
		"lon":    req.Lon,
		"source": source,
		"text":   truncate(req.Text, 100),
	})

	h.pipeline.Enqueue(id)

	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"message": "report received",
		"status":  "queued",
	})
}

// submitEmergencyRequest mirrors the original system's LoRaSOS model.
type submitEmergencyRequest struct {
	DeviceID       string  `json:"deviceId" binding:"required"`
	Lat            float64 `json:"lat" binding:"required"`
	Lon            float64 `json:"lon" binding:"required"`
	BatteryLevel   float64 `json:"batteryLevel"`
	SignalStrength float64 `json:"signalStrength"`
}

func (h *APIHandler) handleSubmitEmergency(c *gin.Context) {
	var req submitEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	report := &models.Report{
		Source:     models.SourceLoRa,
		Text:       "EMERGENCY SOS from LoRa device " + req.DeviceID + ". Immediate assistance required!",
		Lat:        req.Lat,
		Lon:        req.Lon,
		Ts:         time.Now().UTC(),
		MediaPaths: nil,
		UserName:   req.DeviceID,
	}

	id, err := h.store.SaveReport(c.Request.Context(), report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save emergency report"})
		return
	}

	// Process inline rather than queueing — an emergency beacon's confirmation
	// must not wait behind whatever else is sitting in the worker queue.
	if err := h.pipeline.ProcessReport(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process emergency report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "emergency_received",
		"reportId":  id,
		"message":   "emergency SOS from device " + req.DeviceID + " received and prioritized",
		"latitude":  req.Lat,
		"longitude": req.Lon,
	})
}

func (h *APIHandler) handleListReports(c *gin.Context) {
	limit, offset := parsePagination(c)
	reports, err := h.store.ListReports(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "limit": limit, "offset": offset})
}

func (h *APIHandler) handleListHazards(c *gin.Context) {
	limit, offset := parsePagination(c)
	filter := store.HazardFilter{
		Status: store.EventStatusFilter(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t.UTC()
		}
	}

	events, err := h.store.ListHazardEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list hazards"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events, "limit": limit, "offset": offset})
}

func (h *APIHandler) handleGetHazard(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hazard id"})
		return
	}

	event, err := h.store.GetHazardEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "hazard not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch hazard"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *APIHandler) handleListBulletins(c *gin.Context) {
	limit, _ := parsePagination(c)
	bulletins, err := h.store.ListBulletins(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bulletins"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bulletins})
}

type validateHazardRequest struct {
	Status string `json:"status" binding:"required"`
}

// validStatuses is the set of terminal/intermediate statuses an administrator
// may set via the validate hook.
var validStatuses = map[string]models.EventStatus{
	"approved": models.StatusApproved,
	"rejected": models.StatusRejected,
	"pending":  models.StatusPending,
	"review":   models.StatusReview,
}

func (h *APIHandler) handleValidateHazard(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hazard id"})
		return
	}

	var req validateHazardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	status, ok := validStatuses[req.Status]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized status, expected one of approved/rejected/pending/review"})
		return
	}

	if err := h.store.ValidateHazardEvent(c.Request.Context(), id, status); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "hazard not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate hazard"})
		return
	}

	event, err := h.store.GetHazardEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load validated hazard"})
		return
	}

	h.publish(broadcaster.TopicHazardValidated, event)

	c.JSON(http.StatusOK, gin.H{
		"message": "hazard validated",
		"hazard":  event,
	})
}

func (h *APIHandler) handleStream(c *gin.Context) {
	sub := h.bc.Subscribe()
	defer sub.Cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	if connected, err := broadcaster.Frame(broadcaster.TopicConnected, gin.H{
		"message": "connected to hazard stream",
	}); err == nil {
		_, _ = c.Writer.Write(connected)
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-sub.Frames:
			if !ok {
				return false
			}
			_, _ = w.Write(frame)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"engine":  "OceanGuard Hazard Fusion Engine",
		"streams": h.bc.SubscriberCount(),
		"capabilities": gin.H{
			"classifier":  true,
			"credibility": true,
			"clusterer":   true,
			"fusion":      true,
		},
	})
}

func (h *APIHandler) handleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
