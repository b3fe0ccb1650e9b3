package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/middleware"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

// BaseHandler holds the request helpers every resource handler shares.
type BaseHandler struct{}

// ParamID parses a uuid path parameter.
func (BaseHandler) ParamID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errors.Validation("invalid "+name, err)
	}
	return id, nil
}

// ActorID is the authenticated caller.
func (BaseHandler) ActorID(c *gin.Context) (uuid.UUID, error) {
	id := middleware.UserID(c)
	if id == uuid.Nil {
		return uuid.Nil, errors.Unauthorized("no authenticated user")
	}
	return id, nil
}
