package model

import "time"

// Medium represents the language of instruction.
type Medium string

const (
	MediumSinhala Medium = "SINHALA"
	MediumEnglish Medium = "ENGLISH"
	MediumTamil   Medium = "TAMIL"
)

// Student represents a registered student.
type Student struct {
	ID           int       `json:"id"`
	AdmissionNo  string    `json:"admission_no"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Medium       Medium    `json:"medium"`
	Grade        int       `json:"grade"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	AdmissionNo string `json:"admission_no" binding:"required,min=4,max=20"`
	Password    string `json:"password" binding:"required,min=4,max=128"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token   string  `json:"token"`
	Student Student `json:"student"`
}

// CreateStudentRequest is the payload for creating a new student account.
type CreateStudentRequest struct {
	AdmissionNo string `json:"admission_no" binding:"required,min=4,max=20"`
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Phone       string `json:"phone" binding:"required,min=9,max=15"`
	Medium      Medium `json:"medium" binding:"required,oneof=SINHALA ENGLISH TAMIL"`
	Grade       int    `json:"grade" binding:"required,min=1,max=13"`
	Password    string `json:"password" binding:"required,min=6,max=128"`
}
