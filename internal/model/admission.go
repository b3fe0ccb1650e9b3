package model

import (
	"time"

	"github.com/google/uuid"
)

// State transitions:
//
//	pending → approved
//	pending → rejected
//
// approved and rejected are terminal.
type AdmissionStatus string

const (
	AdmissionStatusPending  AdmissionStatus = "pending"
	AdmissionStatusApproved AdmissionStatus = "approved"
	AdmissionStatusRejected AdmissionStatus = "rejected"

	// AdmissionStatusActive only exists on legacy rows written directly in this
	// status by an old intake path. It is never written by this code.
	AdmissionStatusActive AdmissionStatus = "active"
)

// PendingEquivalentStatuses are the statuses that still await a ward admin.
//
// TODO(admissions): drop AdmissionStatusActive once the legacy active rows are
// migrated to pending (data migration 0002_admission_active_to_pending).
var PendingEquivalentStatuses = []AdmissionStatus{
	AdmissionStatusPending,
	AdmissionStatusActive,
}

// IsPendingEquivalent reports whether s still awaits a decision.
func (s AdmissionStatus) IsPendingEquivalent() bool {
	for _, p := range PendingEquivalentStatuses {
		if s == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is legal.
func (s AdmissionStatus) IsTerminal() bool {
	return s == AdmissionStatusApproved || s == AdmissionStatusRejected
}

// PendingEquivalentStrings is PendingEquivalentStatuses as plain strings for query args.
func PendingEquivalentStrings() []string {
	out := make([]string, len(PendingEquivalentStatuses))
	for i, s := range PendingEquivalentStatuses {
		out[i] = string(s)
	}
	return out
}

type Admission struct {
	Base
	VisitID          uuid.UUID       `db:"visit_id" json:"visit_id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	WardID           uuid.UUID       `db:"ward_id" json:"ward_id"`
	RequestedBy      uuid.UUID       `db:"requested_by" json:"requested_by"`
	Status           AdmissionStatus `db:"status" json:"status"`
	Reason           string          `db:"reason" json:"reason,omitempty"`
	BedID            *uuid.UUID      `db:"bed_id" json:"bed_id,omitempty"`
	AssignedDoctorID *uuid.UUID      `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	Notes            string          `db:"notes" json:"notes,omitempty"`
	DecidedBy        *uuid.UUID      `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt        *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	DischargedAt     *time.Time      `db:"discharged_at" json:"discharged_at,omitempty"`
}

type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// Approval is everything the bed-binding unit of work writes.
type Approval struct {
	AdmissionID      uuid.UUID
	WardID           uuid.UUID
	PatientID        uuid.UUID
	BedID            *uuid.UUID
	AssignedDoctorID *uuid.UUID
	Notes            string
	DecidedBy        uuid.UUID
	DecidedAt        time.Time
}

// Rejection is what a reject writes.
type Rejection struct {
	AdmissionID uuid.UUID
	Notes       string
	DecidedBy   uuid.UUID
	DecidedAt   time.Time
}
