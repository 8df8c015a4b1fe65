package labels

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r *gin.RouterGroup, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/copies/labels/export", auth.RequireStaff(), h.Export)
}

func (h *Handler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	data, err := h.svc.Export(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}

	contentType := "text/csv; charset=Shift_JIS"
	if req.Encoding == "utf8" {
		contentType = "text/csv; charset=utf-8"
	}
	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Data(http.StatusOK, contentType, data)
}
