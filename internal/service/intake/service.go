// Package intake registers walk-in patients: find or create the patient, open
// a visit with a queue token and hand it to the least busy doctor.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/internal/service/assignment"
	"github.com/jwalitptl/hospital-intake/internal/service/identity"
	"github.com/jwalitptl/hospital-intake/internal/service/sequence"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
	"github.com/jwalitptl/hospital-intake/pkg/validator"
)

type IntakeService interface {
	RegisterPatient(ctx context.Context, req *model.RegisterPatientRequest) (*model.RegistrationResult, error)
	AdvanceVisit(ctx context.Context, visitID uuid.UUID, to model.VisitStatus) (*model.Visit, error)
	DeactivatePatient(ctx context.Context, patientID uuid.UUID) error
}

type Service struct {
	patients    repository.PatientRepository
	visits      repository.VisitRepository
	departments repository.DepartmentRepository
	identity    identity.IdentityService
	sequences   sequence.SequenceService
	balancer    assignment.BalancerService
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	minutesPerPatient int
}

type Deps struct {
	Patients    repository.PatientRepository
	Visits      repository.VisitRepository
	Departments repository.DepartmentRepository
	Identity    identity.IdentityService
	Sequences   sequence.SequenceService
	Balancer    assignment.BalancerService
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func NewService(d Deps, minutesPerPatient int) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		patients:          d.Patients,
		visits:            d.Visits,
		departments:       d.Departments,
		identity:          d.Identity,
		sequences:         d.Sequences,
		balancer:          d.Balancer,
		logger:            d.Logger,
		metrics:           d.Metrics,
		now:               d.Now,
		minutesPerPatient: minutesPerPatient,
	}
}

func (s *Service) RegisterPatient(ctx context.Context, req *model.RegisterPatientRequest) (*model.RegistrationResult, error) {
	timer := prometheus.NewTimer(s.metrics.RegistrationLatency)
	defer timer.ObserveDuration()

	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	at := s.now()

	if _, err := s.departments.Get(ctx, req.DepartmentID); err != nil {
		return nil, err
	}

	patient, returning, err := s.resolvePatient(ctx, req, at)
	if err != nil {
		return nil, err
	}

	visitNumber, err := s.sequences.NextVisitNumber(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("failed to issue visit number: %w", err)
	}
	tokenNumber, err := s.sequences.NextToken(ctx, req.DepartmentID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	var doctorID *uuid.UUID
	picked, ok, err := s.balancer.Pick(ctx, req.DepartmentID, at)
	if err != nil {
		return nil, err
	}
	if ok {
		doctorID = &picked
	} else {
		s.metrics.UnassignedVisits.Inc()
	}

	visit := &model.Visit{
		Base:           model.Base{ID: uuid.New()},
		VisitNumber:    visitNumber,
		PatientID:      patient.ID,
		DepartmentID:   req.DepartmentID,
		DoctorID:       doctorID,
		ChiefComplaint: req.ChiefComplaint,
		Status:         model.VisitStatusWaiting,
		Priority:       req.Priority,
		CheckInAt:      at,
	}
	token := &model.Token{
		Base:         model.Base{ID: uuid.New()},
		DepartmentID: req.DepartmentID,
		TokenNumber:  tokenNumber,
		IssueDate:    model.DateKey(at),
		Status:       model.VisitStatusWaiting,
	}
	if err := s.visits.CreateWithToken(ctx, visit, token); err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	ahead, err := s.visits.CountWaitingAhead(ctx, req.DepartmentID, doctorID, at)
	if err != nil {
		// The visit exists; a missing estimate is not worth failing over.
		s.logger.Warn(err, "failed to estimate wait", "visit_id", visit.ID.String())
		ahead = 0
	}

	outcome := "new"
	if returning {
		outcome = "returning"
	}
	s.metrics.Registrations.WithLabelValues(outcome).Inc()
	s.logger.Info("patient registered",
		"patient_number", patient.PatientNumber,
		"visit_number", visit.VisitNumber,
		"token", tokenNumber,
		"returning", returning)

	return &model.RegistrationResult{
		Patient:              patient,
		Visit:                visit,
		TokenNumber:          tokenNumber,
		AssignedDoctorID:     doctorID,
		EstimatedWaitMinutes: ahead * s.minutesPerPatient,
		ReturningPatient:     returning,
	}, nil
}

// resolvePatient returns the patient the visit belongs to and whether it was
// already on file.
func (s *Service) resolvePatient(ctx context.Context, req *model.RegisterPatientRequest, at time.Time) (*model.Patient, bool, error) {
	decision, err := s.identity.Resolve(ctx, req.Phone, req.NationalID, req.ForceNew)
	if err != nil {
		return nil, false, err
	}
	if !decision.Create {
		p, err := s.mergeContact(ctx, decision.Patient, req.Contact())
		return p, true, err
	}

	number, err := s.sequences.NextPatientNumber(ctx, at)
	if err != nil {
		return nil, false, fmt.Errorf("failed to issue patient number: %w", err)
	}
	phone, nationalID := s.identity.Normalize(req.Phone, req.NationalID)
	candidate := &model.Patient{
		Base:                 model.Base{ID: uuid.New()},
		PatientNumber:        number,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		DateOfBirth:          req.DateOfBirth,
		Gender:               req.Gender,
		NationalID:           req.NationalID,
		NationalIDNormalized: nationalID,
		Phone:                req.Phone,
		PhoneNormalized:      phone,
		Email:                req.Email,
		Address:              req.Address,
		City:                 req.City,
		EmergencyContact:     req.EmergencyContact,
		Allergies:            req.Allergies,
		MedicalHistory:       req.MedicalHistory,
		Active:               true,
	}

	key := decision.Key
	if req.ForceNew {
		key = model.IdentityKey{}
	}
	stored, created, err := s.identity.FindOrCreate(ctx, candidate, key)
	if err != nil {
		return nil, false, err
	}
	if created {
		return stored, false, nil
	}
	// Someone registered the same person between the search and the insert;
	// the issued patient number becomes a gap.
	p, err := s.mergeContact(ctx, stored, req.Contact())
	return p, true, err
}

func (s *Service) mergeContact(ctx context.Context, p *model.Patient, update model.ContactUpdate) (*model.Patient, error) {
	if update.IsEmpty() {
		return p, nil
	}
	merged, err := s.patients.UpdateContact(ctx, p.ID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update patient contact: %w", err)
	}
	return merged, nil
}

// AdvanceVisit moves a visit and its token forward. Going backwards or
// staying put is a StateConflict.
func (s *Service) AdvanceVisit(ctx context.Context, visitID uuid.UUID, to model.VisitStatus) (*model.Visit, error) {
	if !to.IsValid() {
		return nil, errors.Validation(fmt.Sprintf("unknown visit status %q", to), nil)
	}
	v, err := s.visits.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransitionTo(to) {
		return nil, errors.StateConflict(fmt.Sprintf("visit cannot move from %s to %s", v.Status, to))
	}
	if err := s.visits.AdvanceStatus(ctx, visitID, v.Status, to); err != nil {
		return nil, err
	}
	return s.visits.Get(ctx, visitID)
}

func (s *Service) DeactivatePatient(ctx context.Context, patientID uuid.UUID) error {
	if err := s.patients.Deactivate(ctx, patientID); err != nil {
		return err
	}
	s.logger.Info("patient deactivated", "patient_id", patientID.String())
	return nil
}
