package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/pkg/response"
)

type ProfileHandler struct {
	service   *service.ProfileService
	validator *validator.Validate
}

func NewProfileHandler(svc *service.ProfileService, v *validator.Validate) *ProfileHandler {
	return &ProfileHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/profiles
func (h *ProfileHandler) List(c *fiber.Ctx) error {
	profiles, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, "Profile not found", err)
	}
	return response.OK(c, model.ProfileListResponse{Profiles: profiles})
}

// Create handles POST /api/profiles
func (h *ProfileHandler) Create(c *fiber.Ctx) error {
	var req model.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	profile, err := h.service.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, "Profile not found", err)
	}
	return response.Created(c, profile)
}

// Update handles PUT /api/profiles/:id
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	var req model.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	profile, err := h.service.Update(c.Context(), middleware.GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return serviceError(c, "Profile not found", err)
	}
	return response.OK(c, profile)
}

// Activate handles POST /api/profiles/:id/activate
func (h *ProfileHandler) Activate(c *fiber.Ctx) error {
	profile, err := h.service.Activate(c.Context(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return serviceError(c, "Profile not found", err)
	}
	return response.OK(c, profile)
}

// Delete handles DELETE /api/profiles/:id
func (h *ProfileHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return serviceError(c, "Profile not found", err)
	}
	return response.NoContent(c)
}
