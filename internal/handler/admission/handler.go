package admission

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-intake/internal/handler"
	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/service/admission"
	"github.com/jwalitptl/hospital-intake/pkg/httputil"
)

type Handler struct {
	handler.BaseHandler
	service admission.AdmissionService
}

func NewHandler(service admission.AdmissionService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admissions := r.Group("/admissions")
	{
		admissions.POST("", h.Submit)
		admissions.GET("/:id", h.Get)
		admissions.POST("/:id/decision", h.Decide)
	}
	r.GET("/wards/:id/admissions/pending", h.ListAwaiting)
}

// Submit files a request on behalf of the calling doctor.
func (h *Handler) Submit(c *gin.Context) {
	actor, err := h.ActorID(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.SubmitAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}
	req.RequestedBy = actor

	a, err := h.service.Submit(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, a)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, a)
}

func (h *Handler) Decide(c *gin.Context) {
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
	var req model.DecideAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}
	req.AdmissionID = id
	req.WardAdminID = actor

	a, err := h.service.Decide(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, a)
}

func (h *Handler) ListAwaiting(c *gin.Context) {
	wardID, err := h.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	list, err := h.service.ListAwaiting(c.Request.Context(), wardID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if list == nil {
		list = []*model.Admission{}
	}
	httputil.RespondWithSuccess(c, list)
}
