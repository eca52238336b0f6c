package model

import "time"

// Staff represents a staff user who publishes papers and monitors attempts.
type Staff struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StaffLoginRequest is the payload for staff authentication.
type StaffLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// StaffLoginResponse is returned after successful staff login.
type StaffLoginResponse struct {
	Token string `json:"token"`
	Staff Staff  `json:"staff"`
}

// AttemptOverview is one row of the staff monitoring view.
type AttemptOverview struct {
	AttemptID        string     `json:"attempt_id"`
	StudentID        int        `json:"student_id"`
	StudentName      string     `json:"student_name"`
	AdmissionNo      string     `json:"admission_no"`
	StartedAt        time.Time  `json:"started_at"`
	EndsAt           time.Time  `json:"ends_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	AutoClosed       bool       `json:"auto_closed"`
	AnsweredCount    int        `json:"answered_count"`
	TabSwitchCount   int        `json:"tab_switch_count"`
	WindowCloseCount int        `json:"window_close_count"`
}
