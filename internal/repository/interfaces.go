package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
)

// All repository interfaces in one file. Implementations translate storage
// failures into pkg/errors codes: NotFound for missing rows, TransientStorageError
// for retryable contention, Internal for everything else.
type (
	// CounterStore backs the sequence generator with one counter per scope.
	CounterStore interface {
		// Increment atomically bumps the scope's counter and returns the new value,
		// creating the counter at 1 on first use.
		Increment(ctx context.Context, scope string) (int64, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		// FindFirstMatch returns the oldest active patient matching any phone variant
		// or the normalized national id, or nil when none does.
		FindFirstMatch(ctx context.Context, key model.IdentityKey) (*model.Patient, error)
		// CreateUnlessMatched inserts p unless a patient matching key already exists,
		// checked under per-key locks in the same transaction. It returns the stored
		// patient and whether it was created.
		CreateUnlessMatched(ctx context.Context, p *model.Patient, key model.IdentityKey) (*model.Patient, bool, error)
		UpdateContact(ctx context.Context, id uuid.UUID, update model.ContactUpdate) (*model.Patient, error)
		Deactivate(ctx context.Context, id uuid.UUID) error
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		// ListActive returns the department's active doctors in a stable order.
		ListActive(ctx context.Context, departmentID uuid.UUID) ([]*model.Doctor, error)
	}

	DepartmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Department, error)
	}

	VisitRepository interface {
		// CreateWithToken persists a visit and its token in one transaction.
		CreateWithToken(ctx context.Context, visit *model.Visit, token *model.Token) error
		Get(ctx context.Context, id uuid.UUID) (*model.Visit, error)
		GetToken(ctx context.Context, visitID uuid.UUID) (*model.Token, error)
		// DoctorLoads counts the department's visits per assigned doctor for one day.
		DoctorLoads(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]model.DoctorLoad, error)
		// CountWaitingAhead counts today's waiting visits checked in before the given
		// instant for the doctor, or for the whole department when doctorID is nil.
		CountWaitingAhead(ctx context.Context, departmentID uuid.UUID, doctorID *uuid.UUID, before time.Time) (int, error)
		// AdvanceStatus moves the visit and its token forward together. It fails with
		// StateConflict unless the visit is currently in status from.
		AdvanceStatus(ctx context.Context, visitID uuid.UUID, from, to model.VisitStatus) error
	}

	WardRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Ward, error)
		ListIDs(ctx context.Context) ([]uuid.UUID, error)
		GetBed(ctx context.Context, id uuid.UUID) (*model.Bed, error)
		Occupancy(ctx context.Context, wardID uuid.UUID) (*model.WardOccupancy, error)
		// ReleaseBed flips an occupied bed back to available, clears its occupant,
		// increments the ward counter and stamps the admission's discharge time,
		// all in one transaction. StateConflict if the bed is not occupied.
		ReleaseBed(ctx context.Context, bedID uuid.UUID, at time.Time) (*model.Bed, error)
		// SetMaintenance moves a bed between available and maintenance with the ward
		// counter adjusted in the same transaction. Setting the current state again is
		// a no-op; an occupied bed is a StateConflict.
		SetMaintenance(ctx context.Context, bedID uuid.UUID, on bool) (*model.Bed, error)
		// Reconcile recounts available beds and, when repair is set, rewrites the
		// cached counter under a ward lock.
		Reconcile(ctx context.Context, wardID uuid.UUID, repair bool) (*model.ReconcileResult, error)
	}

	AdmissionRepository interface {
		Create(ctx context.Context, admission *model.Admission) error
		Get(ctx context.Context, id uuid.UUID) (*model.Admission, error)
		// ListByStatus lists a ward's admissions in any of the given statuses, oldest first.
		ListByStatus(ctx context.Context, wardID uuid.UUID, statuses []model.AdmissionStatus) ([]*model.Admission, error)
		// Approve applies the whole bed binding atomically: the bed (if any) goes
		// available → occupied, the ward counter drops by one and the admission goes
		// pending-equivalent → approved. Any failed condition rolls everything back:
		// BedUnavailable when the bed was claimed first, StateConflict when the
		// admission was decided first.
		Approve(ctx context.Context, approval *model.Approval) (*model.Admission, error)
		// Reject moves a pending-equivalent admission to rejected, or StateConflict.
		Reject(ctx context.Context, rejection *model.Rejection) (*model.Admission, error)
	}

	NotificationRepository interface {
		// Enqueue stores the notification and its outbox event together.
		Enqueue(ctx context.Context, notification *model.Notification, event *model.OutboxEvent) error
		MarkStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending returns due pending/retry events; concurrent workers never
		// receive the same event.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
