package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/pkg/response"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// serviceError maps service and client errors to the uniform error body
func serviceError(c *fiber.Ctx, notFound string, err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, notFound)
	case errors.Is(err, service.ErrAlreadyFinished):
		return response.InvalidState(c, "Generation already finished")
	case errors.Is(err, service.ErrNoActiveProfile):
		return response.NoActiveProfile(c)
	case errors.Is(err, service.ErrInvalidPlaylist):
		return response.ValidationError(c, "Invalid playlist id", nil)
	case errors.Is(err, poller.ErrInvalidArgument):
		return response.ValidationError(c, "At least one clip id is required", nil)
	case errors.As(err, &apiErr), errors.Is(err, client.ErrNoSongs):
		return response.UpstreamError(c, err.Error())
	}
	log.Printf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return response.ServiceError(c, "Internal error")
}

// upstreamError is serviceError for endpoints that proxy the remote API,
// where any unclassified failure is the remote side's.
func upstreamError(c *fiber.Ctx, notFound string, err error) error {
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidPlaylist) || errors.Is(err, service.ErrNoActiveProfile) {
		return serviceError(c, notFound, err)
	}
	log.Printf("[API] %s %s upstream failure: %v", c.Method(), c.Path(), err)
	return response.UpstreamError(c, "Song API request failed")
}
