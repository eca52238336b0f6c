package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
	"github.com/iobuilds/learn-lanka-sub000/internal/response"
	"github.com/iobuilds/learn-lanka-sub000/internal/service"
	"github.com/iobuilds/learn-lanka-sub000/internal/validator"
)

// StaffHandler handles staff-facing student administration endpoints.
type StaffHandler struct {
	studentService *service.StudentService
	authService    *service.AuthService
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(studentService *service.StudentService, authService *service.AuthService) *StaffHandler {
	return &StaffHandler{studentService: studentService, authService: authService}
}

// ListStudents godoc
// GET /api/v1/staff/students?grade=&page=&per_page=
func (h *StaffHandler) ListStudents(c *gin.Context) {
	var grade *int
	if g := c.Query("grade"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		grade = &n
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	students, pagination, err := h.studentService.ListStudents(c.Request.Context(), grade, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// CreateStudent godoc
// POST /api/v1/staff/students
func (h *StaffHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student := &model.Student{
		AdmissionNo:  req.AdmissionNo,
		Name:         req.Name,
		Phone:        req.Phone,
		Medium:       req.Medium,
		Grade:        req.Grade,
		PasswordHash: req.Password,
	}

	if err := h.studentService.Create(c.Request.Context(), student); err != nil {
		if errors.Is(err, repository.ErrDuplicateAdmissionNo) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"student": student})
}

// ResetStudentSession godoc
// POST /api/v1/staff/students/:student_id/reset-session
// Clears a student's single-device login so they can sign in again.
func (h *StaffHandler) ResetStudentSession(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), studentID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
