package intake

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-intake/internal/handler"
	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/service/intake"
	"github.com/jwalitptl/hospital-intake/pkg/httputil"
)

type Handler struct {
	handler.BaseHandler
	service intake.IntakeService
}

func NewHandler(service intake.IntakeService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/registrations", h.Register)
	r.PUT("/visits/:id/status", h.AdvanceVisit)
	r.POST("/patients/:id/deactivate", h.DeactivatePatient)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	res, err := h.service.RegisterPatient(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, res)
}

type advanceVisitRequest struct {
	Status model.VisitStatus `json:"status" binding:"required"`
}

func (h *Handler) AdvanceVisit(c *gin.Context) {
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req advanceVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	visit, err := h.service.AdvanceVisit(c.Request.Context(), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visit)
}

func (h *Handler) DeactivatePatient(c *gin.Context) {
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if err := h.service.DeactivatePatient(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "active": false})
}
