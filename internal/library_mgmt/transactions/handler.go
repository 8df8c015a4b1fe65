package transactions

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

	r.POST("/transactions/issue", h.Issue)
	r.GET("/transactions", h.List)
	r.GET("/transactions/overdue", auth.RequireStaff(), h.Overdue)
	r.GET("/transactions/stats", auth.RequireStaff(), h.Stats)
	r.GET("/transactions/:transaction_id", h.Get)
	r.POST("/transactions/:transaction_id/return", auth.RequireStaff(), h.Return)
	r.POST("/transactions/:transaction_id/renew", h.Renew)
	r.GET("/transactions/:transaction_id/calculate-fine", h.Fine)
	r.POST("/transactions/:transaction_id/pay-fine", h.PayFine)
	r.DELETE("/transactions/:transaction_id", auth.RequireStaff(), h.Cancel)
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Issue(c.Request.Context(), auth.ActorFrom(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.Header("Location", "/transactions/"+res.TransactionID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Return(c.Request.Context(), c.Param("transaction_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Renew(c *gin.Context) {
	var req RenewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
			return
		}
	}

	res, err := h.svc.Renew(c.Request.Context(), auth.ActorFrom(c), c.Param("transaction_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Fine(c *gin.Context) {
	res, err := h.svc.Fine(c.Request.Context(), auth.ActorFrom(c), c.Param("transaction_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PayFine(c *gin.Context) {
	var req PayFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.PayFine(c.Request.Context(), auth.ActorFrom(c), c.Param("transaction_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("transaction_id")); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("transaction_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		UserID:   c.Query("user_id"),
		BookULID: c.Query("book_id"),
		Status:   c.Query("status"),
		Limit:    parseIntDefault(c.Query("limit"), 20),
		Offset:   parseIntDefault(c.Query("offset"), 0),
	}

	res, err := h.svc.List(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Overdue(c *gin.Context) {
	res, err := h.svc.Overdue(c.Request.Context())
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"overdue": res, "count": len(res)})
}

func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.Stats(c.Request.Context())
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
