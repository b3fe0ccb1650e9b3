// Package memory is an in-process implementation of the repository interfaces.
// One mutex guards every table, so each method is a serializable unit of work.
// It backs the service, router and relay tests.
package memory

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
)

type Store struct {
	mu sync.Mutex

	counters      map[string]int64
	patients      map[uuid.UUID]*model.Patient
	patientOrder  []uuid.UUID
	departments   map[uuid.UUID]*model.Department
	doctors       map[uuid.UUID]*model.Doctor
	doctorOrder   []uuid.UUID
	visits        map[uuid.UUID]*model.Visit
	visitOrder    []uuid.UUID
	tokens        map[uuid.UUID]*model.Token // keyed by visit id
	wards         map[uuid.UUID]*model.Ward
	beds          map[uuid.UUID]*model.Bed
	bedOrder      []uuid.UUID
	admissions    map[uuid.UUID]*model.Admission
	notifications map[uuid.UUID]*model.Notification
	outbox        map[uuid.UUID]*model.OutboxEvent
	outboxOrder   []uuid.UUID

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		counters:      make(map[string]int64),
		patients:      make(map[uuid.UUID]*model.Patient),
		departments:   make(map[uuid.UUID]*model.Department),
		doctors:       make(map[uuid.UUID]*model.Doctor),
		visits:        make(map[uuid.UUID]*model.Visit),
		tokens:        make(map[uuid.UUID]*model.Token),
		wards:         make(map[uuid.UUID]*model.Ward),
		beds:          make(map[uuid.UUID]*model.Bed),
		admissions:    make(map[uuid.UUID]*model.Admission),
		notifications: make(map[uuid.UUID]*model.Notification),
		outbox:        make(map[uuid.UUID]*model.OutboxEvent),
		now:           time.Now,
	}
}

// WithClock makes row timestamps follow the given time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Counters() repository.CounterStore { return counterRepo{s} }

func (s *Store) Patients() repository.PatientRepository { return patientRepo{s} }

func (s *Store) Doctors() repository.DoctorRepository { return doctorRepo{s} }

func (s *Store) Departments() repository.DepartmentRepository { return departmentRepo{s} }

func (s *Store) Visits() repository.VisitRepository { return visitRepo{s} }

func (s *Store) Wards() repository.WardRepository { return wardRepo{s} }

func (s *Store) Admissions() repository.AdmissionRepository { return admissionRepo{s} }

func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{s} }

func (s *Store) stamp(b *model.Base) {
	now := s.now()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Seeding helpers. Reference data is managed by the surrounding CRUD screens.

func (s *Store) AddDepartment(d *model.Department) *model.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&d.Base)
	cp := *d
	s.departments[d.ID] = &cp
	return d
}

func (s *Store) AddDoctor(d *model.Doctor) *model.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&d.Base)
	cp := *d
	s.doctors[d.ID] = &cp
	s.doctorOrder = append(s.doctorOrder, d.ID)
	return d
}

// AddWard stores the ward and creates bedCount available beds numbered 1..n.
func (s *Store) AddWard(w *model.Ward, bedCount int) []*model.Bed {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&w.Base)
	w.TotalBeds = bedCount
	w.AvailableBeds = bedCount
	cp := *w
	s.wards[w.ID] = &cp

	beds := make([]*model.Bed, 0, bedCount)
	for i := 1; i <= bedCount; i++ {
		b := &model.Bed{WardID: w.ID, BedNumber: bedLabel(w.Name, i), Status: model.BedStatusAvailable}
		s.stamp(&b.Base)
		bc := *b
		s.beds[b.ID] = &bc
		s.bedOrder = append(s.bedOrder, b.ID)
		beds = append(beds, b)
	}
	return beds
}

// AddAdmission inserts an admission as-is, including legacy statuses.
func (s *Store) AddAdmission(a *model.Admission) *model.Admission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&a.Base)
	cp := *a
	s.admissions[a.ID] = &cp
	return a
}

// NotificationsFor returns the notifications addressed to a recipient.
func (s *Store) NotificationsFor(recipientID uuid.UUID) []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

// PatientCount is the number of patient rows.
func (s *Store) PatientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patients)
}

func bedLabel(ward string, i int) string {
	if ward == "" {
		ward = "B"
	}
	return ward + "-" + strconv.Itoa(i)
}
