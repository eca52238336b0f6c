package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iobuilds/learn-lanka-sub000/internal/middleware"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/service"
	"github.com/iobuilds/learn-lanka-sub000/internal/session"
	ws "github.com/iobuilds/learn-lanka-sub000/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a student's attempt over WebSocket: answers and uploads
// into the autosave buffer, violations into the recorder, submit into the
// finalize path. The session engine outlives the connection.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/papers/:paper_id/stream
// Upgrades to WebSocket and drives the student's live session.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paperID, err := uuid.Parse(c.Param("paper_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	sess := h.attemptService.Live(studentID, paperID)
	if sess == nil {
		ws.WriteError(conn, "no active attempt for this paper, enter it first")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("paper_id", paperID.String()).
		Logger()

	// Writes can come from the read loop and from the engine's expiry
	// callback; gorilla connections allow one writer at a time.
	var writeMu sync.Mutex
	send := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		ws.WriteTyped(conn, v)
	}

	// The engine pushes the terminal event if the countdown wins while this
	// connection is open.
	detach := sess.Subscribe(func(autoClosed bool) {
		send(ws.FinalizedResponse{
			Event:      ws.EventFinalized,
			AutoClosed: autoClosed,
			State:      session.StateTerminal.String(),
		})
	})
	defer detach()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c.Request.Context(), send, sess, paperID, studentID, &msg)
		case ws.ActionUpload:
			h.handleUpload(send, sess, &msg)
		case ws.ActionTabSwitch:
			h.handleTabSwitch(c.Request.Context(), send, sess, paperID, studentID)
		case ws.ActionSubmit:
			h.handleSubmit(c.Request.Context(), send, wsLog, sess)
		case ws.ActionPing:
			send(ws.PongResponse{Event: ws.EventPong, RemainingSeconds: sess.Status().RemainingSeconds})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, send func(interface{}), sess *session.Session, paperID uuid.UUID, studentID int, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}
	if msg.SelectedOption < 1 {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "selected_option is required"})
		return
	}

	if err := sess.RecordAnswer(questionID, msg.SelectedOption); err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt is not active"})
		return
	}

	answered := sess.Status().AnsweredCount
	h.attemptService.PublishAnswerSaved(ctx, paperID, sess.Attempt().ID, studentID, answered)
	send(ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID, AnsweredCount: answered})
}

func (h *WSHandler) handleUpload(send func(interface{}), sess *session.Session, msg *ws.RequestPayload) {
	uploadType := model.UploadType(msg.UploadType)
	if uploadType != model.UploadTypeEssay && uploadType != model.UploadTypeShortEssay {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid upload_type"})
		return
	}
	if msg.DocumentRef == "" {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "document_ref is required"})
		return
	}

	if err := sess.RecordUpload(uploadType, msg.DocumentRef); err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt is not active"})
		return
	}

	send(ws.SavedResponse{Event: ws.EventSaved, UploadType: msg.UploadType, AnsweredCount: sess.Status().AnsweredCount})
}

func (h *WSHandler) handleTabSwitch(ctx context.Context, send func(interface{}), sess *session.Session, paperID uuid.UUID, studentID int) {
	if err := sess.RecordTabSwitch(); err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt is not active"})
		return
	}

	attemptID := sess.Attempt().ID
	h.attemptService.EnqueueViolationEvent(ctx, attemptID, model.ViolationTabSwitch)
	h.attemptService.PublishViolation(ctx, paperID, attemptID, studentID, model.ViolationTabSwitch)

	st := sess.Status()
	send(ws.ViolationResponse{
		Event:            ws.EventViolation,
		TabSwitchCount:   st.TabSwitchCount,
		WindowCloseCount: st.WindowCloseCount,
	})
}

func (h *WSHandler) handleSubmit(ctx context.Context, send func(interface{}), wsLog zerolog.Logger, sess *session.Session) {
	if err := sess.Submit(ctx); err != nil {
		if errors.Is(err, session.ErrFinalizeFailed) {
			wsLog.Error().Err(err).Msg("Submit failed")
			send(ws.ErrorResponse{Event: ws.EventError, Error: "submission could not be saved, please retry"})
			return
		}
		send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt is not active"})
		return
	}

	// The finalized event reaches the client through the session subscription,
	// same as a countdown expiry. No second push here.
	wsLog.Info().Msg("Attempt submitted")
}
