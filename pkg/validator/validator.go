package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

// FieldError is one failed rule, named by the field's json name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is what a failed Validate wraps inside the ValidationError.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + " " + fe.Message
	}
	return strings.Join(parts, "; ")
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"oneof":    "must be one of: %s",
	"min":      "is too short",
	"max":      "is too long",
}

type validate struct {
	v *validator.Validate
}

func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return toSnake(fld.Name)
		}
		return name
	})
	return &validate{v: v}
}

func (v *validate) Validate(obj interface{}) error {
	return Translate(v.v.Struct(obj))
}

func (v *validate) ValidateField(field string, value interface{}, rules string) error {
	err := v.v.Var(value, rules)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(Errors, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: field, Message: message(fe)})
		}
		return errors.Validation(out.Error(), out)
	}
	return errors.Validation(err.Error(), err)
}

var (
	defaultOnce sync.Once
	defaultV    Validator
)

// Validate checks obj's validate tags with the shared instance.
func Validate(obj interface{}) error {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV.Validate(obj)
}

// Translate converts go-playground validation errors, including the ones gin
// binding returns, into a ValidationError carrying Errors. Other errors are
// wrapped as a malformed request.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Validation("invalid request body", err)
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return errors.Validation(out.Error(), out)
}

func message(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed %s", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
