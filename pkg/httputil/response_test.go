package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/validator"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrValidation, http.StatusBadRequest},
		{errors.ErrNotFound, http.StatusNotFound},
		{errors.ErrUnauthorized, http.StatusForbidden},
		{errors.ErrStateConflict, http.StatusConflict},
		{errors.ErrBedUnavailable, http.StatusConflict},
		{errors.ErrSequenceExhausted, http.StatusServiceUnavailable},
		{errors.ErrTransientStorage, http.StatusServiceUnavailable},
		{errors.ErrRateLimited, http.StatusTooManyRequests},
		{errors.ErrInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.code))
		})
	}
}

func respond(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondWithError(c, err)
	return w
}

func TestRespondWithError_HidesStorageDetails(t *testing.T) {
	w := respond(fmt.Errorf("failed to approve: %w", errors.Internal(fmt.Errorf("pq: relation \"beds\" does not exist"))))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")

	w = respond(fmt.Errorf("plain error"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "plain error")
}

func TestRespondWithError_KindAndFields(t *testing.T) {
	w := respond(errors.BedUnavailable("W1-2"))
	require.Equal(t, http.StatusConflict, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "bed_unavailable", body.Error.Kind)
	assert.Equal(t, "bed W1-2 is not available", body.Error.Message)

	w = respond(errors.Validation("invalid", validator.Errors{{Field: "phone", Message: "is required"}}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Error.Fields, 1)
	assert.Equal(t, "phone", body.Error.Fields[0].Field)
}
