package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository/memory"
	"github.com/jwalitptl/hospital-intake/internal/service/assignment"
	"github.com/jwalitptl/hospital-intake/internal/service/identity"
	"github.com/jwalitptl/hospital-intake/internal/service/sequence"
	"github.com/jwalitptl/hospital-intake/pkg/clock"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

type harness struct {
	svc   *Service
	store *memory.Store
	clock *clock.Fixed
	dept  *model.Department
	docs  []*model.Doctor
}

func newHarness(t *testing.T, doctors int) *harness {
	t.Helper()
	clk := clock.NewFixed(time.Date(2025, 5, 13, 9, 0, 0, 0, time.UTC))
	store := memory.NewStore().WithClock(clk.Now)
	log := logger.Nop()
	m := metrics.New("test", nil)

	dept := store.AddDepartment(&model.Department{Code: "D1", Name: "General OPD"})
	h := &harness{store: store, clock: clk, dept: dept}
	for i := 0; i < doctors; i++ {
		h.docs = append(h.docs, store.AddDoctor(&model.Doctor{DepartmentID: dept.ID, Name: "Dr " + string(rune('A'+i)), Active: true}))
	}

	seq := sequence.NewService(store.Counters(), sequence.Config{InitialInterval: time.Microsecond}, log, m)
	h.svc = NewService(Deps{
		Patients:    store.Patients(),
		Visits:      store.Visits(),
		Departments: store.Departments(),
		Identity:    identity.NewService(store.Patients(), identity.DefaultPhoneRules(), log),
		Sequences:   seq,
		Balancer:    assignment.NewService(store.Doctors(), store.Visits(), 0, log),
		Logger:      log,
		Metrics:     m,
		Now:         clk.Now,
	}, 10)
	return h
}

func (h *harness) request(phone string) *model.RegisterPatientRequest {
	return &model.RegisterPatientRequest{
		FirstName:      "Ayesha",
		LastName:       "Khan",
		DateOfBirth:    time.Date(1990, 3, 2, 0, 0, 0, 0, time.UTC),
		Gender:         model.GenderFemale,
		Phone:          phone,
		DepartmentID:   h.dept.ID,
		ChiefComplaint: "fever",
	}
}

func TestRegisterPatient_BasicIntake(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	// docs[0] already has a visit today, so docs[1] is least loaded.
	busy := h.docs[0].ID
	require.NoError(t, h.store.Visits().CreateWithToken(ctx,
		&model.Visit{DepartmentID: h.dept.ID, PatientID: uuid.New(), DoctorID: &busy, Status: model.VisitStatusCompleted, CheckInAt: h.clock.Now().Add(-time.Hour)},
		&model.Token{DepartmentID: h.dept.ID, TokenNumber: 900, IssueDate: "2025-05-13"}))

	res, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)

	assert.Equal(t, "P2505001", res.Patient.PatientNumber)
	assert.Equal(t, "03001234567", res.Patient.PhoneNormalized)
	assert.Equal(t, "V250513001", res.Visit.VisitNumber)
	assert.Equal(t, 1, res.TokenNumber)
	require.NotNil(t, res.AssignedDoctorID)
	assert.Equal(t, h.docs[1].ID, *res.AssignedDoctorID)
	assert.Equal(t, model.VisitStatusWaiting, res.Visit.Status)
	assert.Equal(t, model.PriorityNormal, res.Visit.Priority)
	assert.Equal(t, 0, res.EstimatedWaitMinutes)
	assert.False(t, res.ReturningPatient)

	token, err := h.store.Visits().GetToken(ctx, res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, token.TokenNumber)
	assert.Equal(t, "2025-05-13", token.IssueDate)
}

func TestRegisterPatient_RepeatVisit(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	first, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	again := h.request("+92 300 1234567")
	again.FirstName = "Ignored"
	again.Allergies = "penicillin"
	again.Address = "House 12, Street 4"
	second, err := h.svc.RegisterPatient(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.Patient.ID, second.Patient.ID)
	assert.True(t, second.ReturningPatient)
	assert.Equal(t, 2, second.TokenNumber)
	assert.Equal(t, "V250513002", second.Visit.VisitNumber)
	assert.NotEqual(t, first.Visit.ID, second.Visit.ID)
	assert.Equal(t, 1, h.store.PatientCount())

	// Contact fields merge, demographic and medical fields do not.
	assert.Equal(t, "House 12, Street 4", second.Patient.Address)
	assert.Equal(t, "Ayesha", second.Patient.FirstName)
	assert.Empty(t, second.Patient.Allergies)

	// One waiting visit for the same doctor checked in earlier.
	assert.Equal(t, 10, second.EstimatedWaitMinutes)
}

func TestRegisterPatient_ConcurrentDuplicatesCreateOnePatient(t *testing.T) {
	h := newHarness(t, 1)
	const n = 20

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, n)
	tokens := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.svc.RegisterPatient(context.Background(), h.request("0300-1234567"))
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = res.Patient.ID
			tokens[i] = res.TokenNumber
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.PatientCount())
	seen := make(map[int]bool)
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		assert.False(t, seen[tokens[i]], "token %d issued twice", tokens[i])
		seen[tokens[i]] = true
	}
}

func TestRegisterPatient_ForceNew(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	first, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)

	req := h.request("0300-1234567")
	req.FirstName = "Bilal"
	req.ForceNew = true
	second, err := h.svc.RegisterPatient(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Patient.ID, second.Patient.ID)
	assert.Equal(t, "P2505002", second.Patient.PatientNumber)
	assert.Equal(t, 2, h.store.PatientCount())
}

func TestRegisterPatient_NoDoctorStillCreatesVisit(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	first, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)
	assert.Nil(t, first.AssignedDoctorID)
	assert.Nil(t, first.Visit.DoctorID)
	assert.Equal(t, 1, first.TokenNumber)

	h.clock.Advance(time.Minute)
	second, err := h.svc.RegisterPatient(ctx, h.request("0321-7654321"))
	require.NoError(t, err)
	assert.Equal(t, 10, second.EstimatedWaitMinutes, "department queue is used when unassigned")
}

func TestRegisterPatient_Validation(t *testing.T) {
	h := newHarness(t, 1)
	req := h.request("")
	req.ChiefComplaint = ""

	_, err := h.svc.RegisterPatient(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ValidationFailure))
	assert.Contains(t, err.Error(), "phone")
	assert.Contains(t, err.Error(), "chief_complaint")
	assert.Equal(t, 0, h.store.PatientCount())
}

func TestRegisterPatient_UnknownDepartment(t *testing.T) {
	h := newHarness(t, 1)
	req := h.request("0300-1234567")
	req.DepartmentID = uuid.New()

	_, err := h.svc.RegisterPatient(context.Background(), req)
	assert.True(t, errors.Is(err, errors.NotFoundError))
}

func TestAdvanceVisit(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	res, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)

	v, err := h.svc.AdvanceVisit(ctx, res.Visit.ID, model.VisitStatusInConsultation)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusInConsultation, v.Status)

	token, err := h.store.Visits().GetToken(ctx, res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusInConsultation, token.Status)

	_, err = h.svc.AdvanceVisit(ctx, res.Visit.ID, model.VisitStatusWaiting)
	assert.True(t, errors.Is(err, errors.StateConflictError))

	_, err = h.svc.AdvanceVisit(ctx, res.Visit.ID, "discharged")
	assert.True(t, errors.Is(err, errors.ValidationFailure))

	_, err = h.svc.AdvanceVisit(ctx, res.Visit.ID, model.VisitStatusCompleted)
	require.NoError(t, err)
}

func TestDeactivatedPatientIsNotMatched(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	first, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)
	require.NoError(t, h.svc.DeactivatePatient(ctx, first.Patient.ID))

	second, err := h.svc.RegisterPatient(ctx, h.request("0300-1234567"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Patient.ID, second.Patient.ID)
	assert.False(t, second.ReturningPatient)
}
