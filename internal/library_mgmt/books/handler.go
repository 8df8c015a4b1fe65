package books

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

	r.POST("/books", auth.RequireStaff(), h.Create)
	r.GET("/books", h.List)
	r.GET("/books/:book_id", h.Get)
	r.PUT("/books/:book_id", auth.RequireStaff(), h.Update)
	r.DELETE("/books/:book_id", auth.RequireStaff(), h.Deactivate)

	r.POST("/books/:book_id/copies", auth.RequireStaff(), h.AddCopies)
	r.GET("/books/:book_id/copies", h.ListCopies)
	r.PUT("/copies/:barcode/status", auth.RequireStaff(), h.UpdateCopyStatus)
	r.DELETE("/copies/:barcode", auth.RequireStaff(), h.DeleteCopy)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.CreateBook(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}

	c.Header("Location", "/books/"+res.BookULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.GetBook(c.Request.Context(), c.Param("book_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Query:      c.Query("q"),
		ActiveOnly: c.DefaultQuery("active", "1") != "0",
		Limit:      parseIntDefault(c.Query("limit"), 50),
		Offset:     parseIntDefault(c.Query("offset"), 0),
	}
	res, err := h.svc.ListBooks(c.Request.Context(), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.UpdateBook(c.Request.Context(), c.Param("book_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Deactivate(c *gin.Context) {
	if err := h.svc.DeactivateBook(c.Request.Context(), c.Param("book_id")); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}

func (h *Handler) AddCopies(c *gin.Context) {
	var req AddCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.AddCopies(c.Request.Context(), c.Param("book_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListCopies(c *gin.Context) {
	res, err := h.svc.ListCopies(c.Request.Context(), c.Param("book_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateCopyStatus(c *gin.Context) {
	var req UpdateCopyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.UpdateCopyStatus(c.Request.Context(), c.Param("barcode"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteCopy(c *gin.Context) {
	if err := h.svc.DeleteCopy(c.Request.Context(), c.Param("barcode")); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
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
