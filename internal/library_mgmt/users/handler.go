package users

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterPublicRoutes mounts the unauthenticated endpoints.
func RegisterPublicRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
}

// RegisterRoutes mounts the authenticated account endpoints.
func RegisterRoutes(r *gin.RouterGroup, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/users", auth.RequireStaff(), h.List)
	r.GET("/users/:user_id", h.Get)
	r.PUT("/users/:user_id/status", auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin), h.UpdateStatus)
	r.PUT("/users/:user_id/role", auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin), h.UpdateRole)
	r.DELETE("/users/:user_id", auth.RequireRole(auth.RoleSuperAdmin), h.Delete)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}

	c.Header("Location", "/users/"+res.UserID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("user_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Email:  c.Query("email"),
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.UpdateStatus(c.Request.Context(), auth.ActorFrom(c), c.Param("user_id"), req.Status)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.UpdateRole(c.Request.Context(), auth.ActorFrom(c), c.Param("user_id"), req.Role)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Deactivate(c.Request.Context(), auth.ActorFrom(c), c.Param("user_id")); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
