package handlerUtil

import (
	"DefectVision/internal/api/inference"
	"DefectVision/pkg/log"
	"DefectVision/pkg/response"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Resolve maps err to the status and client-facing message it should be
// reported with. Anything not recognised is a 500 with a generic message.
func Resolve(err error) (int, string) {
	var respErr *response.Error
	if errors.As(err, &respErr) && respErr.Code < fiber.StatusInternalServerError {
		return respErr.Code, respErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusRequestTimeout, utils.StatusMessage(fiber.StatusRequestTimeout)
	}
	return fiber.StatusInternalServerError, "An unexpected error occurred"
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	status, message := Resolve(err)

	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"code":       status,
		"path":       path,
		"operation":  operation,
	}

	switch {
	case errors.Is(err, inference.ErrNoImage),
		errors.Is(err, inference.ErrEmptyImage),
		errors.Is(err, inference.ErrImageTooLarge),
		errors.Is(err, inference.ErrUndecodableImage):
		h.logger.WithFields(fields).Warn("Rejected image upload")
	case status < fiber.StatusInternalServerError:
		h.logger.WithFields(fields).Warn("Operation failed with error response")
	default:
		log.ErrorWithTraceID(fields, "Unexpected error")
	}

	return c.Status(status).JSON(inference.ErrorResponse{Error: message})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(inference.ErrorResponse{
		Error: utils.StatusMessage(fiber.StatusRequestTimeout),
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
