package model

import (
	"time"

	"github.com/google/uuid"
)

// RegisterPatientRequest is the intake desk's registration form.
type RegisterPatientRequest struct {
	FirstName        string    `json:"first_name" binding:"required" validate:"required"`
	LastName         string    `json:"last_name" binding:"required" validate:"required"`
	DateOfBirth      time.Time `json:"date_of_birth" binding:"required" validate:"required"`
	Gender           Gender    `json:"gender" binding:"required,oneof=male female other" validate:"required,oneof=male female other"`
	Phone            string    `json:"phone" binding:"required" validate:"required"`
	NationalID       string    `json:"national_id"`
	Email            string    `json:"email" binding:"omitempty,email" validate:"omitempty,email"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	EmergencyContact string    `json:"emergency_contact"`
	Allergies        string    `json:"allergies"`
	MedicalHistory   string    `json:"medical_history"`
	DepartmentID     uuid.UUID `json:"department_id" binding:"required" validate:"required"`
	ChiefComplaint   string    `json:"chief_complaint" binding:"required" validate:"required"`
	Priority         Priority  `json:"priority" binding:"omitempty,oneof=normal urgent emergency" validate:"omitempty,oneof=normal urgent emergency"`
	ForceNew         bool      `json:"force_new"`
}

// Contact extracts the fields a repeat visit may merge.
func (r *RegisterPatientRequest) Contact() ContactUpdate {
	return ContactUpdate{
		Address:          r.Address,
		Email:            r.Email,
		EmergencyContact: r.EmergencyContact,
		City:             r.City,
	}
}

// RegistrationResult is returned to the intake desk.
type RegistrationResult struct {
	Patient              *Patient   `json:"patient"`
	Visit                *Visit     `json:"visit"`
	TokenNumber          int        `json:"token_number"`
	AssignedDoctorID     *uuid.UUID `json:"assigned_doctor_id"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	ReturningPatient     bool       `json:"returning_patient"`
}

// SubmitAdmissionRequest is filed by a doctor for a visit's patient.
type SubmitAdmissionRequest struct {
	VisitID     uuid.UUID `json:"visit_id" binding:"required" validate:"required"`
	WardID      uuid.UUID `json:"ward_id" binding:"required" validate:"required"`
	RequestedBy uuid.UUID `json:"-" validate:"required"`
	Reason      string    `json:"reason"`
}

// DecideAdmissionRequest is a ward admin's decision.
type DecideAdmissionRequest struct {
	AdmissionID      uuid.UUID      `json:"-" validate:"required"`
	Action           DecisionAction `json:"action" binding:"required,oneof=approve reject" validate:"required,oneof=approve reject"`
	WardAdminID      uuid.UUID      `json:"-" validate:"required"`
	BedID            *uuid.UUID     `json:"bed_id"`
	AssignedDoctorID *uuid.UUID     `json:"assigned_doctor_id"`
	Notes            string         `json:"notes"`
}
