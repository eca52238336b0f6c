package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/middleware"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/response"
	"github.com/iobuilds/learn-lanka-sub000/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the staff monitoring endpoints for a paper.
type MonitorHandler struct {
	paperService   *service.PaperService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	paperService *service.PaperService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		paperService:   paperService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListAttempts godoc
// GET /api/v1/staff/papers/:paper_id/attempts
// Returns every attempt at a paper with progress and violation counters.
func (h *MonitorHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paperID, err := uuid.Parse(c.Param("paper_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempts, err := h.monitorService.ListAttempts(c.Request.Context(), paperID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// MonitorPaperSSE godoc
// GET /api/v1/staff/papers/:paper_id/monitor
// Streams the paper's live events (answers, violations, finalizations) over
// SSE, with periodic full refreshes and keep-alive pings.
func (h *MonitorHandler) MonitorPaperSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paperID, err := uuid.Parse(c.Param("paper_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.paperService.GetByID(c.Request.Context(), paperID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.sendSnapshot(c, reqCtx, paper)

	pubsub := h.monitorService.Subscribe(reqCtx, paperID)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("paper_id", paperID.String()).Msg("Staff attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("paper_id", paperID.String()).Msg("Staff disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, paper)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes a full attempts snapshot as one SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, paper *model.RankPaper) {
	// Scoped timeout prevents a slow query from stalling the SSE loop.
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	attempts, err := h.monitorService.ListAttempts(ctx, paper.ID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch attempts for snapshot")
		return
	}

	totalStarted := len(attempts)
	totalSubmitted := 0
	totalViolations := 0
	for _, a := range attempts {
		if a.SubmittedAt != nil {
			totalSubmitted++
		}
		totalViolations += a.TabSwitchCount + a.WindowCloseCount
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"paper": map[string]interface{}{
				"id":              paper.ID.String(),
				"title":           paper.Title,
				"duration":        paper.DurationMinutes,
				"total_questions": paper.QuestionCount,
			},
			"stats": map[string]interface{}{
				"total_started":    totalStarted,
				"total_submitted":  totalSubmitted,
				"total_violations": totalViolations,
			},
			"attempts": attempts,
		},
	})
	c.Writer.Flush()
}
