package requests

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r *gin.RouterGroup, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/borrow-requests", h.Create)
	r.GET("/borrow-requests", h.List)
	r.POST("/borrow-requests/:request_id/approve", auth.RequireStaff(), h.Approve)
	r.POST("/borrow-requests/:request_id/reject", auth.RequireStaff(), h.Reject)
	r.POST("/borrow-requests/:request_id/cancel", h.Cancel)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), auth.ActorFrom(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.Header("Location", "/borrow-requests/"+res.RequestID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Approve(c *gin.Context) {
	res, err := h.svc.Approve(c.Request.Context(), auth.ActorFrom(c), c.Param("request_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reject(c *gin.Context) {
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
			return
		}
	}

	res, err := h.svc.Reject(c.Request.Context(), auth.ActorFrom(c), c.Param("request_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), auth.ActorFrom(c), c.Param("request_id")); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		UserID: c.Query("user_id"),
		Status: c.Query("status"),
		Limit:  parseIntDefault(c.Query("limit"), 20),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}

	res, err := h.svc.List(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
