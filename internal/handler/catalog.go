package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/pkg/response"
)

// CatalogHandler proxies read-only remote library calls
type CatalogHandler struct {
	service   *service.CatalogService
	validator *validator.Validate
}

func NewCatalogHandler(svc *service.CatalogService, v *validator.Validate) *CatalogHandler {
	return &CatalogHandler{
		service:   svc,
		validator: v,
	}
}

// Songs handles GET /api/songs
func (h *CatalogHandler) Songs(c *fiber.Ctx) error {
	result, err := h.service.Songs(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return upstreamError(c, "Songs not found", err)
	}
	return response.OK(c, result)
}

// Search handles GET /api/search?query=&style=
func (h *CatalogHandler) Search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query"))
	style := strings.TrimSpace(c.Query("style"))
	if query == "" && style == "" {
		return response.ValidationError(c, "query or style is required", nil)
	}

	result, err := h.service.Search(c.Context(), middleware.GetUserID(c), query, style)
	if err != nil {
		return upstreamError(c, "Songs not found", err)
	}
	return response.OK(c, result)
}

// Lyrics handles POST /api/lyrics
func (h *CatalogHandler) Lyrics(c *fiber.Ctx) error {
	var req model.LyricsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Lyrics(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return upstreamError(c, "Lyrics not found", err)
	}
	return response.OK(c, result)
}
