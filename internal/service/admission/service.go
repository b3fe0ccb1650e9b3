// Package admission runs the ward admission workflow:
//
//	pending → approved (optionally binding a bed)
//	pending → rejected
//
// Decided admissions are final. Legacy rows in status active are treated as
// pending; see model.PendingEquivalentStatuses.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/internal/service/bed"
	"github.com/jwalitptl/hospital-intake/internal/service/notification"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
	"github.com/jwalitptl/hospital-intake/pkg/validator"
)

type AdmissionService interface {
	Submit(ctx context.Context, req *model.SubmitAdmissionRequest) (*model.Admission, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Admission, error)
	ListAwaiting(ctx context.Context, wardID uuid.UUID) ([]*model.Admission, error)
	Decide(ctx context.Context, req *model.DecideAdmissionRequest) (*model.Admission, error)
	Approve(ctx context.Context, admissionID, wardAdminID uuid.UUID, bedID, assignedDoctorID *uuid.UUID, notes string) (*model.Admission, error)
	Reject(ctx context.Context, admissionID, wardAdminID uuid.UUID, notes string) (*model.Admission, error)
}

type Service struct {
	admissions repository.AdmissionRepository
	visits     repository.VisitRepository
	wards      repository.WardRepository
	doctors    repository.DoctorRepository
	ledger     bed.LedgerService
	notifier   notification.Service
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(
	admissions repository.AdmissionRepository,
	visits repository.VisitRepository,
	wards repository.WardRepository,
	doctors repository.DoctorRepository,
	ledger bed.LedgerService,
	notifier notification.Service,
	log *logger.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		admissions: admissions,
		visits:     visits,
		wards:      wards,
		doctors:    doctors,
		ledger:     ledger,
		notifier:   notifier,
		logger:     log,
		metrics:    m,
		now:        now,
	}
}

func (s *Service) Submit(ctx context.Context, req *model.SubmitAdmissionRequest) (*model.Admission, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	visit, err := s.visits.Get(ctx, req.VisitID)
	if err != nil {
		return nil, err
	}
	ward, err := s.wards.Get(ctx, req.WardID)
	if err != nil {
		return nil, err
	}

	a := &model.Admission{
		Base:        model.Base{ID: uuid.New()},
		VisitID:     visit.ID,
		PatientID:   visit.PatientID,
		WardID:      ward.ID,
		RequestedBy: req.RequestedBy,
		Status:      model.AdmissionStatusPending,
		Reason:      req.Reason,
	}
	if err := s.admissions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create admission: %w", err)
	}
	s.logger.Info("admission requested",
		"admission_id", a.ID.String(),
		"ward_id", ward.ID.String(),
		"requested_by", req.RequestedBy.String())
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	return s.admissions.Get(ctx, id)
}

// ListAwaiting lists the ward's admissions still waiting for a decision,
// including legacy active rows.
func (s *Service) ListAwaiting(ctx context.Context, wardID uuid.UUID) ([]*model.Admission, error) {
	if _, err := s.wards.Get(ctx, wardID); err != nil {
		return nil, err
	}
	out, err := s.admissions.ListByStatus(ctx, wardID, model.PendingEquivalentStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list admissions: %w", err)
	}
	return out, nil
}

func (s *Service) Decide(ctx context.Context, req *model.DecideAdmissionRequest) (*model.Admission, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	switch req.Action {
	case model.DecisionApprove:
		return s.Approve(ctx, req.AdmissionID, req.WardAdminID, req.BedID, req.AssignedDoctorID, req.Notes)
	case model.DecisionReject:
		if req.BedID != nil {
			return nil, errors.Validation("a rejection cannot carry a bed", nil)
		}
		return s.Reject(ctx, req.AdmissionID, req.WardAdminID, req.Notes)
	}
	return nil, errors.Validation(fmt.Sprintf("unknown action %q", req.Action), nil)
}

func (s *Service) Approve(ctx context.Context, admissionID, wardAdminID uuid.UUID, bedID, assignedDoctorID *uuid.UUID, notes string) (*model.Admission, error) {
	a, ward, err := s.loadForDecision(ctx, admissionID, wardAdminID)
	if err != nil {
		s.recordDecision(model.DecisionApprove, err)
		return nil, err
	}

	var bedNumber string
	if bedID != nil {
		b, err := s.wards.GetBed(ctx, *bedID)
		if err != nil {
			s.recordDecision(model.DecisionApprove, err)
			return nil, err
		}
		if b.WardID != ward.ID {
			err := errors.Validation(fmt.Sprintf("bed %s is not in ward %s", b.BedNumber, ward.Name), nil)
			s.recordDecision(model.DecisionApprove, err)
			return nil, err
		}
		// Availability is re-checked inside the ledger transaction; this only
		// saves a round trip on the common case.
		if b.Status != model.BedStatusAvailable {
			err := errors.BedUnavailable(b.BedNumber)
			s.recordDecision(model.DecisionApprove, err)
			return nil, err
		}
		bedNumber = b.BedNumber
	}
	if assignedDoctorID != nil {
		if _, err := s.doctors.Get(ctx, *assignedDoctorID); err != nil {
			s.recordDecision(model.DecisionApprove, err)
			return nil, err
		}
	}

	approved, err := s.ledger.Allocate(ctx, &model.Approval{
		AdmissionID:      a.ID,
		WardID:           ward.ID,
		PatientID:        a.PatientID,
		BedID:            bedID,
		AssignedDoctorID: assignedDoctorID,
		Notes:            notes,
		DecidedBy:        wardAdminID,
		DecidedAt:        s.now(),
	})
	s.recordDecision(model.DecisionApprove, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admission approved",
		"admission_id", approved.ID.String(),
		"ward_id", ward.ID.String(),
		"bed", bedNumber)

	msg := fmt.Sprintf("Admission to %s approved.", ward.Name)
	if bedNumber != "" {
		msg = fmt.Sprintf("Admission to %s approved. Bed %s assigned.", ward.Name, bedNumber)
	}
	s.notify(ctx, approved.RequestedBy, "Admission approved", msg, approved.ID)
	if assignedDoctorID != nil {
		s.notify(ctx, *assignedDoctorID, "New ward patient assigned",
			fmt.Sprintf("You have been assigned an admitted patient in %s.", ward.Name), approved.ID)
	}
	return approved, nil
}

func (s *Service) Reject(ctx context.Context, admissionID, wardAdminID uuid.UUID, notes string) (*model.Admission, error) {
	_, ward, err := s.loadForDecision(ctx, admissionID, wardAdminID)
	if err != nil {
		s.recordDecision(model.DecisionReject, err)
		return nil, err
	}
	rejected, err := s.admissions.Reject(ctx, &model.Rejection{
		AdmissionID: admissionID,
		Notes:       notes,
		DecidedBy:   wardAdminID,
		DecidedAt:   s.now(),
	})
	s.recordDecision(model.DecisionReject, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admission rejected", "admission_id", rejected.ID.String(), "ward_id", ward.ID.String())

	msg := fmt.Sprintf("Admission to %s was rejected.", ward.Name)
	if notes != "" {
		msg += " " + notes
	}
	s.notify(ctx, rejected.RequestedBy, "Admission rejected", msg, rejected.ID)
	return rejected, nil
}

// loadForDecision checks existence, state and authority, in that order.
func (s *Service) loadForDecision(ctx context.Context, admissionID, wardAdminID uuid.UUID) (*model.Admission, *model.Ward, error) {
	a, err := s.admissions.Get(ctx, admissionID)
	if err != nil {
		return nil, nil, err
	}
	if !a.Status.IsPendingEquivalent() {
		return nil, nil, errors.StateConflict(fmt.Sprintf("admission is already %s", a.Status))
	}
	ward, err := s.wards.Get(ctx, a.WardID)
	if err != nil {
		return nil, nil, err
	}
	if ward.AdminID != wardAdminID {
		return nil, nil, errors.Unauthorized("only the ward administrator can decide this admission")
	}
	return a, ward, nil
}

// notify runs after the decision has committed. A failure here is logged and
// counted; the decision stands.
func (s *Service) notify(ctx context.Context, recipient uuid.UUID, title, message string, admissionID uuid.UUID) {
	if err := s.notifier.Send(ctx, recipient, title, message, model.EntityAdmission, admissionID); err != nil {
		s.metrics.NotificationFailures.Inc()
		s.logger.Warn(err, "failed to send admission notification",
			"admission_id", admissionID.String(),
			"recipient_id", recipient.String())
	}
}

func (s *Service) recordDecision(action model.DecisionAction, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errors.CodeOf(err).String()
	}
	s.metrics.AdmissionDecisions.WithLabelValues(string(action), outcome).Inc()
}
