package payments

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

	r.POST("/payments/record", auth.RequireStaff(), h.Record)
	r.GET("/payments", h.List)
	r.GET("/payments/:payment_id", h.Get)
	r.POST("/payments/:payment_id/refund", auth.RequireStaff(), h.Refund)
	r.GET("/payments/transaction/:transaction_id/breakdown", h.Breakdown)
}

func (h *Handler) Record(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Record(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.Header("Location", "/payments/"+res.PaymentID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Refund(c.Request.Context(), c.Param("payment_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Breakdown(c *gin.Context) {
	res, err := h.svc.Breakdown(c.Request.Context(), auth.ActorFrom(c), c.Param("transaction_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("payment_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		TransactionULID: c.Query("transaction_id"),
		UserID:          c.Query("user_id"),
		Status:          c.Query("status"),
		Limit:           parseIntDefault(c.Query("limit"), 20),
		Offset:          parseIntDefault(c.Query("offset"), 0),
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
