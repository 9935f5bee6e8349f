package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/service"
	ws "github.com/makeasinger/clipwatch/internal/websocket"
	"github.com/makeasinger/clipwatch/pkg/response"
)

type GenerationHandler struct {
	service   *service.GenerationService
	hub       *ws.Hub
	validator *validator.Validate
}

func NewGenerationHandler(svc *service.GenerationService, hub *ws.Hub, v *validator.Validate) *GenerationHandler {
	return &GenerationHandler{
		service:   svc,
		hub:       hub,
		validator: v,
	}
}

// Start handles POST /api/generations
// @Summary      Start generation
// @Description  Submit a song to the remote API and poll its clips until they are ready
// @Tags         Generations
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateRequest true "Generate request"
// @Success      202 {object} model.GenerationStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generations [post]
func (h *GenerationHandler) Start(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, "Generation not found", err)
	}

	return response.Accepted(c, result)
}

// Watch handles POST /api/generations/watch
// @Summary      Watch existing clips
// @Description  Poll clips that were already submitted until they are ready
// @Tags         Generations
// @Accept       json
// @Produce      json
// @Param        request body model.WatchRequest true "Clip ids"
// @Success      202 {object} model.GenerationStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generations/watch [post]
func (h *GenerationHandler) Watch(c *fiber.Ctx) error {
	var req model.WatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Watch(c.Context(), middleware.GetUserID(c), req.ClipIDs)
	if err != nil {
		return serviceError(c, "Generation not found", err)
	}

	return response.Accepted(c, result)
}

// List handles GET /api/generations
// @Summary      List generations
// @Tags         Generations
// @Produce      json
// @Success      200 {object} model.GenerationListResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generations [get]
func (h *GenerationHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, "Generation not found", err)
	}

	return response.OK(c, model.GenerationListResponse{Generations: result})
}

// Status handles GET /api/generations/:id
// @Summary      Get generation status
// @Description  Get the latest clip snapshot and progress of a generation
// @Tags         Generations
// @Produce      json
// @Param        id path string true "Generation ID"
// @Success      200 {object} model.GenerationStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generations/{id} [get]
func (h *GenerationHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.Status(c.Context(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return serviceError(c, "Generation not found", err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/generations/:id/cancel
// @Summary      Cancel generation
// @Description  Stop polling a generation that is still in progress
// @Tags         Generations
// @Produce      json
// @Param        id path string true "Generation ID"
// @Success      200 {object} model.GenerationCancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generations/{id}/cancel [post]
func (h *GenerationHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.Context(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return serviceError(c, "Generation not found", err)
	}

	return response.OK(c, result)
}

// Subscribe handles GET /ws/generations/:id
func (h *GenerationHandler) Subscribe(c *websocket.Conn) {
	h.hub.HandleConnection(c, c.Params("id"))
}
