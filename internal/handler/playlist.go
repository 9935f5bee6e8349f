package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/pkg/response"
)

type PlaylistHandler struct {
	service   *service.PlaylistService
	validator *validator.Validate
}

func NewPlaylistHandler(svc *service.PlaylistService, v *validator.Validate) *PlaylistHandler {
	return &PlaylistHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/playlists
func (h *PlaylistHandler) List(c *fiber.Ctx) error {
	playlists, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, "Playlist not found", err)
	}
	return response.OK(c, model.PlaylistListResponse{Playlists: playlists})
}

// Save handles POST /api/playlists. The id may be a share URL.
func (h *PlaylistHandler) Save(c *fiber.Ctx) error {
	var req model.PlaylistSaveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	playlist, err := h.service.Save(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, "Playlist not found", err)
	}
	return response.Created(c, playlist)
}

// Rename handles PUT /api/playlists/:id
func (h *PlaylistHandler) Rename(c *fiber.Ctx) error {
	var req model.PlaylistRenameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	playlist, err := h.service.Rename(c.Context(), middleware.GetUserID(c), c.Params("id"), req.Name)
	if err != nil {
		return serviceError(c, "Playlist not found", err)
	}
	return response.OK(c, playlist)
}

// Delete handles DELETE /api/playlists/:id
func (h *PlaylistHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return serviceError(c, "Playlist not found", err)
	}
	return response.NoContent(c)
}

// Clips handles GET /api/playlists/:id/clips?page=
func (h *PlaylistHandler) Clips(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)

	result, err := h.service.Clips(c.Context(), middleware.GetUserID(c), c.Params("id"), page)
	if err != nil {
		return upstreamError(c, "Playlist not found", err)
	}
	return response.OK(c, result)
}
