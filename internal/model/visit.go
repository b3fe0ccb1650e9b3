package model

import (
	"time"

	"github.com/google/uuid"
)

// VisitStatus only moves forward: waiting → in_consultation → completed.
type VisitStatus string

const (
	VisitStatusWaiting        VisitStatus = "waiting"
	VisitStatusInConsultation VisitStatus = "in_consultation"
	VisitStatusCompleted      VisitStatus = "completed"
)

func (s VisitStatus) rank() int {
	switch s {
	case VisitStatusWaiting:
		return 1
	case VisitStatusInConsultation:
		return 2
	case VisitStatusCompleted:
		return 3
	}
	return 0
}

func (s VisitStatus) IsValid() bool {
	return s.rank() > 0
}

// CanTransitionTo allows only strictly forward moves.
func (s VisitStatus) CanTransitionTo(next VisitStatus) bool {
	return next.IsValid() && next.rank() > s.rank()
}

type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

type Visit struct {
	Base
	VisitNumber    string      `db:"visit_number" json:"visit_number"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	DepartmentID   uuid.UUID   `db:"department_id" json:"department_id"`
	DoctorID       *uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ChiefComplaint string      `db:"chief_complaint" json:"chief_complaint"`
	Status         VisitStatus `db:"status" json:"status"`
	Priority       Priority    `db:"priority" json:"priority"`
	CheckInAt      time.Time   `db:"check_in_at" json:"check_in_at"`
}

// Token is the queue ticket bound 1:1 to a visit. Its number is unique within
// {department, issue date}.
type Token struct {
	Base
	VisitID      uuid.UUID   `db:"visit_id" json:"visit_id"`
	DepartmentID uuid.UUID   `db:"department_id" json:"department_id"`
	TokenNumber  int         `db:"token_number" json:"token_number"`
	IssueDate    string      `db:"issue_date" json:"issue_date"`
	Status       VisitStatus `db:"status" json:"status"`
}
