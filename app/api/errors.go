package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"ragchat/model"
	"ragchat/store"
)

// ErrorHandler maps the error taxonomy onto response codes: validation and
// bad input stay 4xx, provider and index failures become 5xx with a
// descriptive message. Nothing here retries on the caller's behalf.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var upstreamErr *model.UpstreamError
	if errors.As(err, &upstreamErr) {
		log.Error().Int("status", upstreamErr.Status).Msg("upstream provider error")
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, upstreamErr.Error()))
	}

	if errors.Is(err, model.ErrEmbeddingUnavailable) || errors.Is(err, store.ErrIndexUnavailable) {
		log.Error().Err(err).Msg("backend unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(NewError(fiber.StatusServiceUnavailable, err.Error()))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	log.Error().Err(err).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, err.Error()))
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrUnknownModel(model string) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("model %q is not in the allowed list", model),
	}
}
