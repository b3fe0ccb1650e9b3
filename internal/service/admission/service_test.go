package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository/memory"
	"github.com/jwalitptl/hospital-intake/internal/service/bed"
	"github.com/jwalitptl/hospital-intake/internal/service/notification"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

var now = time.Date(2025, 5, 13, 15, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	store     *memory.Store
	metrics   *metrics.Metrics
	ward      *model.Ward
	otherWard *model.Ward
	beds      []*model.Bed
	admin     uuid.UUID
	requester *model.Doctor
	wardDoc   *model.Doctor
	visit     *model.Visit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := func() time.Time { return now }
	store := memory.NewStore().WithClock(clk)
	log := logger.Nop()
	m := metrics.New("test", nil)

	dept := store.AddDepartment(&model.Department{Code: "MED", Name: "Medicine"})
	h := &harness{store: store, metrics: m, admin: uuid.New()}
	h.requester = store.AddDoctor(&model.Doctor{DepartmentID: dept.ID, Name: "Dr Requester", Active: true})
	h.wardDoc = store.AddDoctor(&model.Doctor{DepartmentID: dept.ID, Name: "Dr Ward", Active: true})
	h.ward = &model.Ward{Name: "Ward A", DepartmentID: dept.ID, AdminID: h.admin}
	h.beds = store.AddWard(h.ward, 3)
	h.otherWard = &model.Ward{Name: "Ward B", DepartmentID: dept.ID, AdminID: uuid.New()}
	store.AddWard(h.otherWard, 1)

	h.visit = &model.Visit{PatientID: uuid.New(), DepartmentID: dept.ID, Status: model.VisitStatusInConsultation, CheckInAt: now}
	require.NoError(t, store.Visits().CreateWithToken(context.Background(), h.visit,
		&model.Token{DepartmentID: dept.ID, TokenNumber: 1, IssueDate: model.DateKey(now)}))

	ledger := bed.NewService(store.Wards(), store.Admissions(), 3, log, m, clk)
	h.svc = NewService(store.Admissions(), store.Visits(), store.Wards(), store.Doctors(),
		ledger, notification.NewService(store.Notifications(), clk), log, m, clk)
	return h
}

func (h *harness) submit(t *testing.T) *model.Admission {
	t.Helper()
	a, err := h.svc.Submit(context.Background(), &model.SubmitAdmissionRequest{
		VisitID:     h.visit.ID,
		WardID:      h.ward.ID,
		RequestedBy: h.requester.ID,
		Reason:      "observation",
	})
	require.NoError(t, err)
	return a
}

func (h *harness) assertLedger(t *testing.T) {
	t.Helper()
	occ, err := h.store.Wards().Occupancy(context.Background(), h.ward.ID)
	require.NoError(t, err)
	assert.Equal(t, occ.CountAvailable(), occ.Ward.AvailableBeds)
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	a := h.submit(t)
	assert.Equal(t, model.AdmissionStatusPending, a.Status)
	assert.Equal(t, h.visit.PatientID, a.PatientID)

	_, err := h.svc.Submit(context.Background(), &model.SubmitAdmissionRequest{VisitID: uuid.New(), WardID: h.ward.ID, RequestedBy: h.requester.ID})
	assert.True(t, errors.Is(err, errors.NotFoundError))

	_, err = h.svc.Submit(context.Background(), &model.SubmitAdmissionRequest{VisitID: h.visit.ID, WardID: h.ward.ID})
	assert.True(t, errors.Is(err, errors.ValidationFailure), "requested_by is required")
}

func TestApprove_BindsBedAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t)

	got, err := h.svc.Decide(ctx, &model.DecideAdmissionRequest{
		AdmissionID:      a.ID,
		Action:           model.DecisionApprove,
		WardAdminID:      h.admin,
		BedID:            ptr(h.beds[1].ID),
		AssignedDoctorID: ptr(h.wardDoc.ID),
		Notes:            "monitor vitals",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionStatusApproved, got.Status)
	require.NotNil(t, got.BedID)
	assert.Equal(t, h.beds[1].ID, *got.BedID)
	assert.Equal(t, h.wardDoc.ID, *got.AssignedDoctorID)
	assert.Equal(t, h.admin, *got.DecidedBy)
	assert.True(t, got.DecidedAt.Equal(now))

	b, err := h.store.Wards().GetBed(ctx, h.beds[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.BedStatusOccupied, b.Status)
	assert.Equal(t, a.PatientID, *b.OccupantID)
	ward, err := h.store.Wards().Get(ctx, h.ward.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ward.AvailableBeds)
	h.assertLedger(t)

	toRequester := h.store.NotificationsFor(h.requester.ID)
	require.Len(t, toRequester, 1)
	assert.Contains(t, toRequester[0].Message, h.beds[1].BedNumber)
	assert.Equal(t, model.EntityAdmission, toRequester[0].RelatedEntityType)
	assert.Equal(t, a.ID, toRequester[0].RelatedEntityID)
	assert.Len(t, h.store.NotificationsFor(h.wardDoc.ID), 1)
	assert.Len(t, h.store.Events(), 2)
}

func TestApprove_WithoutBed(t *testing.T) {
	h := newHarness(t)
	a := h.submit(t)

	got, err := h.svc.Approve(context.Background(), a.ID, h.admin, nil, nil, "")
	require.NoError(t, err)
	assert.Nil(t, got.BedID)
	assert.Len(t, h.store.NotificationsFor(h.requester.ID), 1)
	ward, err := h.store.Wards().Get(context.Background(), h.ward.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ward.AvailableBeds)
}

func TestApprove_Failures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t)

	_, err := h.svc.Approve(ctx, uuid.New(), h.admin, nil, nil, "")
	assert.True(t, errors.Is(err, errors.NotFoundError))

	_, err = h.svc.Approve(ctx, a.ID, h.otherWard.AdminID, ptr(h.beds[0].ID), nil, "")
	assert.True(t, errors.Is(err, errors.UnauthorizedError))

	occ, err := h.store.Wards().Occupancy(ctx, h.otherWard.ID)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, a.ID, h.admin, ptr(occ.Beds[0].ID), nil, "")
	assert.True(t, errors.Is(err, errors.ValidationFailure), "bed from another ward")

	_, err = h.svc.Approve(ctx, a.ID, h.admin, ptr(h.beds[0].ID), ptr(uuid.New()), "")
	assert.True(t, errors.Is(err, errors.NotFoundError), "unknown assigned doctor")

	stored, err := h.store.Admissions().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionStatusPending, stored.Status)
	assert.Empty(t, h.store.Events())
	h.assertLedger(t)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.submit(t)
	_, err := h.svc.Approve(ctx, approved.ID, h.admin, ptr(h.beds[0].ID), nil, "")
	require.NoError(t, err)

	rejected := h.submit(t)
	_, err = h.svc.Reject(ctx, rejected.ID, h.admin, "no clinical need")
	require.NoError(t, err)

	eventsBefore := len(h.store.Events())
	for _, id := range []uuid.UUID{approved.ID, rejected.ID} {
		before, err := h.store.Admissions().Get(ctx, id)
		require.NoError(t, err)

		_, err = h.svc.Approve(ctx, id, h.admin, ptr(h.beds[2].ID), nil, "")
		assert.True(t, errors.Is(err, errors.StateConflictError))
		_, err = h.svc.Reject(ctx, id, h.admin, "again")
		assert.True(t, errors.Is(err, errors.StateConflictError))

		after, err := h.store.Admissions().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
	b, err := h.store.Wards().GetBed(ctx, h.beds[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.BedStatusAvailable, b.Status)
	assert.Len(t, h.store.Events(), eventsBefore)
	h.assertLedger(t)
}

func TestReject(t *testing.T) {
	h := newHarness(t)
	a := h.submit(t)

	_, err := h.svc.Decide(context.Background(), &model.DecideAdmissionRequest{
		AdmissionID: a.ID, Action: model.DecisionReject, WardAdminID: h.admin, BedID: ptr(h.beds[0].ID),
	})
	assert.True(t, errors.Is(err, errors.ValidationFailure))

	got, err := h.svc.Decide(context.Background(), &model.DecideAdmissionRequest{
		AdmissionID: a.ID, Action: model.DecisionReject, WardAdminID: h.admin, Notes: "refer to OPD",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionStatusRejected, got.Status)
	assert.Equal(t, "refer to OPD", got.Notes)
	assert.Nil(t, got.BedID)

	sent := h.store.NotificationsFor(h.requester.ID)
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Title, "Admission rejected"))
	h.assertLedger(t)
}

func TestLegacyActiveAdmissionsAwaitDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.submit(t)
	legacy := h.store.AddAdmission(&model.Admission{
		VisitID: h.visit.ID, PatientID: h.visit.PatientID, WardID: h.ward.ID,
		RequestedBy: h.requester.ID, Status: model.AdmissionStatusActive,
	})

	awaiting, err := h.svc.ListAwaiting(ctx, h.ward.ID)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, a := range awaiting {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pending.ID, legacy.ID}, ids)

	got, err := h.svc.Approve(ctx, legacy.ID, h.admin, ptr(h.beds[0].ID), nil, "")
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionStatusApproved, got.Status)

	awaiting, err = h.svc.ListAwaiting(ctx, h.ward.ID)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, pending.ID, awaiting[0].ID)
}

// barrierLedger holds every Allocate until all expected callers have passed
// the service's pre-checks, so the race happens inside the ledger.
type barrierLedger struct {
	bed.LedgerService
	arrived *sync.WaitGroup
}

func (b barrierLedger) Allocate(ctx context.Context, ap *model.Approval) (*model.Admission, error) {
	b.arrived.Done()
	b.arrived.Wait()
	return b.LedgerService.Allocate(ctx, ap)
}

func TestApprove_BedRace(t *testing.T) {
	h := newHarness(t)
	a := h.submit(t)

	arrived := &sync.WaitGroup{}
	arrived.Add(2)
	h.svc.ledger = barrierLedger{LedgerService: h.svc.ledger, arrived: arrived}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Approve(context.Background(), a.ID, h.admin, ptr(h.beds[0].ID), nil, fmt.Sprintf("admin %d", i))
		}(i)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errors.BedUnavailableError):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)
	h.assertLedger(t)
	assert.Len(t, h.store.NotificationsFor(h.requester.ID), 1)
}

func TestApprove_NoDoubleBindingAcrossAdmissions(t *testing.T) {
	h := newHarness(t)
	const n = 10
	admissions := make([]*model.Admission, n)
	for i := range admissions {
		admissions[i] = h.submit(t)
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.svc.Approve(context.Background(), admissions[i].ID, h.admin, ptr(h.beds[0].ID), nil, "")
		}(i)
	}
	wg.Wait()

	approved := 0
	for _, err := range results {
		if err == nil {
			approved++
			continue
		}
		assert.True(t, errors.Is(err, errors.BedUnavailableError), "got %v", err)
	}
	assert.Equal(t, 1, approved)

	bound := 0
	for _, a := range admissions {
		stored, err := h.store.Admissions().Get(context.Background(), a.ID)
		require.NoError(t, err)
		if stored.Status == model.AdmissionStatusApproved {
			require.NotNil(t, stored.BedID)
			assert.Equal(t, h.beds[0].ID, *stored.BedID)
			bound++
		} else {
			assert.Equal(t, model.AdmissionStatusPending, stored.Status)
		}
	}
	assert.Equal(t, 1, bound)
	h.assertLedger(t)
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, uuid.UUID, string, string, string, uuid.UUID) error {
	return errors.Transient(fmt.Errorf("outbox unavailable"))
}

func TestApprove_NotificationFailureKeepsDecision(t *testing.T) {
	h := newHarness(t)
	h.svc.notifier = failingNotifier{}
	a := h.submit(t)

	got, err := h.svc.Approve(context.Background(), a.ID, h.admin, ptr(h.beds[0].ID), ptr(h.wardDoc.ID), "")
	require.NoError(t, err)
	assert.Equal(t, model.AdmissionStatusApproved, got.Status)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.NotificationFailures))
	h.assertLedger(t)
}
