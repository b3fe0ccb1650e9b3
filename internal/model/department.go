package model

import "github.com/google/uuid"

type Department struct {
	Base
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

type Doctor struct {
	Base
	DepartmentID uuid.UUID `db:"department_id" json:"department_id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email,omitempty"`
	Active       bool      `db:"active" json:"active"`
}

// DoctorLoad is one row of a same-day workload snapshot.
type DoctorLoad struct {
	DoctorID uuid.UUID `db:"doctor_id"`
	Visits   int       `db:"visits"`
}
