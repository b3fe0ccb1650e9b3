package model

import "github.com/google/uuid"

type BedStatus string

const (
	BedStatusAvailable   BedStatus = "available"
	BedStatusOccupied    BedStatus = "occupied"
	BedStatusMaintenance BedStatus = "maintenance"
)

func (s BedStatus) IsValid() bool {
	switch s {
	case BedStatusAvailable, BedStatusOccupied, BedStatusMaintenance:
		return true
	}
	return false
}

// Ward caches AvailableBeds; it must always equal the number of its beds in
// status available.
type Ward struct {
	Base
	Name          string    `db:"name" json:"name"`
	DepartmentID  uuid.UUID `db:"department_id" json:"department_id"`
	AdminID       uuid.UUID `db:"admin_id" json:"admin_id"`
	TotalBeds     int       `db:"total_beds" json:"total_beds"`
	AvailableBeds int       `db:"available_beds" json:"available_beds"`
}

// Bed has an occupant if and only if it is occupied.
type Bed struct {
	Base
	WardID      uuid.UUID  `db:"ward_id" json:"ward_id"`
	BedNumber   string     `db:"bed_number" json:"bed_number"`
	Status      BedStatus  `db:"status" json:"status"`
	OccupantID  *uuid.UUID `db:"occupant_id" json:"occupant_id,omitempty"`
	AdmissionID *uuid.UUID `db:"admission_id" json:"admission_id,omitempty"`
}

// WardOccupancy is a ward with its beds, read in one snapshot.
type WardOccupancy struct {
	Ward *Ward  `json:"ward"`
	Beds []*Bed `json:"beds"`
}

// CountAvailable recounts the beds in status available.
func (o *WardOccupancy) CountAvailable() int {
	n := 0
	for _, b := range o.Beds {
		if b.Status == BedStatusAvailable {
			n++
		}
	}
	return n
}

// ReconcileResult reports a ward counter check.
type ReconcileResult struct {
	WardID   uuid.UUID `json:"ward_id"`
	Cached   int       `json:"cached"`
	Actual   int       `json:"actual"`
	Repaired bool      `json:"repaired"`
}
