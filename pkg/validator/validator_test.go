package validator

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

func TestValidate_RegistrationRequiredFields(t *testing.T) {
	err := Validate(&model.RegisterPatientRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ValidationFailure))

	var fields Errors
	require.True(t, errors.As(err, &fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.ElementsMatch(t, []string{
		"first_name", "last_name", "date_of_birth", "gender", "phone", "department_id", "chief_complaint",
	}, names)
}

func TestValidate_Valid(t *testing.T) {
	err := Validate(&model.RegisterPatientRequest{
		FirstName:      "Ayesha",
		LastName:       "Khan",
		DateOfBirth:    time.Date(1990, 3, 2, 0, 0, 0, 0, time.UTC),
		Gender:         model.GenderFemale,
		Phone:          "0300-1234567",
		DepartmentID:   uuid.New(),
		ChiefComplaint: "fever",
	})
	assert.NoError(t, err)
}

func TestValidate_OneOfAndEmail(t *testing.T) {
	err := Validate(&model.RegisterPatientRequest{
		FirstName:      "Ayesha",
		LastName:       "Khan",
		DateOfBirth:    time.Date(1990, 3, 2, 0, 0, 0, 0, time.UTC),
		Gender:         "unknown",
		Phone:          "0300-1234567",
		Email:          "not-an-email",
		DepartmentID:   uuid.New(),
		ChiefComplaint: "fever",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gender must be one of: male female other")
	assert.Contains(t, err.Error(), "email must be a valid email address")
}

func TestValidateField(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateField("bed_number", "W1-1", "required,max=16"))
	err := v.ValidateField("bed_number", "", "required")
	assert.True(t, errors.Is(err, errors.ValidationFailure))
}
