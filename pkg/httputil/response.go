package httputil

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int                    `json:"code"`
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Fields  []validator.FieldError `json:"fields,omitempty"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrValidation:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrUnauthorized:
		return http.StatusForbidden
	case errors.ErrStateConflict, errors.ErrBedUnavailable:
		return http.StatusConflict
	case errors.ErrSequenceExhausted, errors.ErrTransientStorage:
		return http.StatusServiceUnavailable
	case errors.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. Only the code, kind and message of
// an AppError reach the client; anything else becomes a bare 500.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = errors.Transient(err)
			appErr.Message = "request timed out"
		} else {
			appErr = errors.Internal(err)
		}
	}

	status := StatusFor(appErr.Code)
	body := &Error{
		Code:    status,
		Kind:    appErr.Kind(),
		Message: appErr.Message,
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
	}
	var fields validator.Errors
	if errors.As(err, &fields) {
		body.Fields = fields
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   body,
	})
}

// BindError turns a gin binding failure into a validation error.
func BindError(err error) error {
	return validator.Translate(err)
}
