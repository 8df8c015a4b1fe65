package reports

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r *gin.RouterGroup, svc *Service) {
	h := &Handler{svc: svc}

	staff := auth.RequireStaff()
	r.GET("/reports/dashboard", staff, h.Dashboard)
	r.GET("/reports/financial", staff, h.Financial)
	r.GET("/reports/circulation", staff, h.Circulation)
}

func (h *Handler) Dashboard(c *gin.Context) {
	res, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Financial(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(err))
		return
	}
	res, err := h.svc.Financial(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Circulation(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(err))
		return
	}
	res, err := h.svc.Circulation(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// parseWindow reads optional from/to query params as RFC 3339 or plain
// dates. Zero values mean "use the default window".
func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = parseDate(v); err != nil {
			return from, to, apierr.ErrInvalid("from must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = parseDate(v); err != nil {
			return from, to, apierr.ErrInvalid("to must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
	}
	return from, to, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
