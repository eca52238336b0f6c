package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iobuilds/learn-lanka-sub000/internal/middleware"
	"github.com/iobuilds/learn-lanka-sub000/internal/response"
	"github.com/iobuilds/learn-lanka-sub000/internal/service"
)

// StudentPortalHandler handles student-facing endpoints (paper list, attempt entry).
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	paperService   *service.PaperService
	studentService *service.StudentService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	paperService *service.PaperService,
	studentService *service.StudentService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		paperService:   paperService,
		studentService: studentService,
	}
}

// ListPapers godoc
// GET /api/v1/student/papers
// Returns the published papers the student can sit, filtered by their
// medium and grade.
func (h *StudentPortalHandler) ListPapers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student, err := h.studentService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	papers, err := h.paperService.ListForStudent(c.Request.Context(), student.Medium, student.Grade)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"papers": papers})
}

// EnterAttempt godoc
// POST /api/v1/student/papers/:paper_id/attempt
// Creates or resumes the student's attempt and starts the session engine.
// Idempotent: re-entering a running attempt re-attaches to it.
func (h *StudentPortalHandler) EnterAttempt(c *gin.Context) {
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

	sess, err := h.attemptService.Enter(c.Request.Context(), claims.UserID, paperID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrPaperNotPublished), errors.Is(err, service.ErrPaperNotOpen):
			response.Fail(c, http.StatusForbidden, response.ErrPaperNotAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	st := sess.Status()
	answers := make(map[string]int)
	for q, sel := range sess.Answers() {
		answers[q.String()] = sel
	}
	response.Success(c, http.StatusOK, gin.H{
		"attempt": gin.H{
			"id":                sess.Attempt().ID,
			"state":             st.State.String(),
			"remaining_seconds": st.RemainingSeconds,
			"answered_count":    st.AnsweredCount,
			"auto_closed":       st.AutoClosed,
			"submitted_at":      st.SubmittedAt,
		},
		"answers": answers,
	})
}

// GetPaper godoc
// GET /api/v1/student/papers/:paper_id/paper
// Returns the paper payload from Redis (no answer key).
// Requires an attempt: students cannot download papers they have not entered.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
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

	if !h.requireAttempt(c, claims.UserID, paperID) {
		return
	}

	payload, err := h.paperService.GetPaperPayload(c.Request.Context(), paperID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrPaperNotPublished)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetAttemptState godoc
// GET /api/v1/student/papers/:paper_id/state
// Returns the attempt's current state: remaining time, autosaved answers,
// violation totals. Covers page reload before the WebSocket reconnects.
func (h *StudentPortalHandler) GetAttemptState(c *gin.Context) {
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

	state, err := h.attemptService.State(c.Request.Context(), claims.UserID, paperID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoAttempt)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// requireAttempt verifies the student has an attempt at the paper, writing
// the failure response itself when they do not.
func (h *StudentPortalHandler) requireAttempt(c *gin.Context, studentID int, paperID uuid.UUID) bool {
	if h.attemptService.Live(studentID, paperID) != nil {
		return true
	}
	if _, err := h.attemptService.State(c.Request.Context(), studentID, paperID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrNoAttempt)
		return false
	}
	return true
}
