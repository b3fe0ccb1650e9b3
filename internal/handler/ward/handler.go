package ward

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-intake/internal/handler"
	"github.com/jwalitptl/hospital-intake/internal/service/bed"
	"github.com/jwalitptl/hospital-intake/pkg/httputil"
)

type Handler struct {
	handler.BaseHandler
	ledger bed.LedgerService
}

func NewHandler(ledger bed.LedgerService) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wards/:id/occupancy", h.Occupancy)
	r.POST("/wards/:id/reconcile", h.Reconcile)
	r.POST("/beds/:id/discharge", h.Discharge)
	r.PUT("/beds/:id/maintenance", h.SetMaintenance)
}

func (h *Handler) Occupancy(c *gin.Context) {
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	occ, err := h.ledger.Occupancy(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, occ)
}

func (h *Handler) Reconcile(c *gin.Context) {
	actor, err := h.ActorID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	res, err := h.ledger.Reconcile(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Discharge(c *gin.Context) {
	actor, err := h.ActorID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	b, err := h.ledger.Discharge(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}

type maintenanceRequest struct {
	Maintenance *bool `json:"maintenance" binding:"required"`
}

func (h *Handler) SetMaintenance(c *gin.Context) {
	actor, err := h.ActorID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}
	b, err := h.ledger.SetMaintenance(c.Request.Context(), id, actor, *req.Maintenance)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}
