package model

import (
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Patient is the durable identity record. Demographic and medical fields are
// append-only by convention; repeat visits only touch the contact fields.
type Patient struct {
	Base
	PatientNumber        string    `db:"patient_number" json:"patient_number"`
	FirstName            string    `db:"first_name" json:"first_name"`
	LastName             string    `db:"last_name" json:"last_name"`
	DateOfBirth          time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender               Gender    `db:"gender" json:"gender"`
	NationalID           string    `db:"national_id" json:"national_id,omitempty"`
	NationalIDNormalized string    `db:"national_id_normalized" json:"-"`
	Phone                string    `db:"phone" json:"phone"`
	PhoneNormalized      string    `db:"phone_normalized" json:"-"`
	Email                string    `db:"email" json:"email,omitempty"`
	Address              string    `db:"address" json:"address,omitempty"`
	City                 string    `db:"city" json:"city,omitempty"`
	EmergencyContact     string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	Allergies            string    `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory       string    `db:"medical_history" json:"medical_history,omitempty"`
	Active               bool      `db:"active" json:"active"`
}

// Age in whole years at the given instant.
func (p *Patient) Age(at time.Time) int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	years := at.Year() - p.DateOfBirth.Year()
	if at.Month() < p.DateOfBirth.Month() ||
		(at.Month() == p.DateOfBirth.Month() && at.Day() < p.DateOfBirth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// ContactUpdate carries the only fields a repeat registration may change.
type ContactUpdate struct {
	Address          string
	Email            string
	EmergencyContact string
	City             string
}

// IsEmpty reports whether the update would change nothing.
func (c ContactUpdate) IsEmpty() bool {
	return c.Address == "" && c.Email == "" && c.EmergencyContact == "" && c.City == ""
}

// Apply merges the non-empty fields into p and reports whether anything changed.
func (c ContactUpdate) Apply(p *Patient) bool {
	changed := false
	if c.Address != "" && c.Address != p.Address {
		p.Address = c.Address
		changed = true
	}
	if c.Email != "" && c.Email != p.Email {
		p.Email = c.Email
		changed = true
	}
	if c.EmergencyContact != "" && c.EmergencyContact != p.EmergencyContact {
		p.EmergencyContact = c.EmergencyContact
		changed = true
	}
	if c.City != "" && c.City != p.City {
		p.City = c.City
		changed = true
	}
	return changed
}

// IdentityKey is the normalized lookup key for deduplication.
type IdentityKey struct {
	PhoneVariants []string
	NationalID    string
}

// IsEmpty reports whether there is nothing to match on.
func (k IdentityKey) IsEmpty() bool {
	return len(k.PhoneVariants) == 0 && k.NationalID == ""
}

// Matches reports whether p is one of the patients k refers to. Inactive
// patients never match.
func (k IdentityKey) Matches(p *Patient) bool {
	if p == nil || !p.Active {
		return false
	}
	if k.NationalID != "" && p.NationalIDNormalized == k.NationalID {
		return true
	}
	if p.PhoneNormalized == "" {
		return false
	}
	for _, v := range k.PhoneVariants {
		if p.PhoneNormalized == v {
			return true
		}
	}
	return false
}
