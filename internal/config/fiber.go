package config

import (
	"DefectVision/internal/api/inference"
	"DefectVision/pkg/log"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// multipart framing on top of the largest accepted image
const bodyOverhead = 1 << 20

func NewFiber(logger *logrus.Logger, maxUploadBytes int64) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Defect Classifier",
			BodyLimit:         int(maxUploadBytes) + bodyOverhead,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: false,
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      newErrorHandler(logger),
		})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,X-Request-ID",
	}))

	return app
}

// newErrorHandler keeps errors that escape a handler (panics, 404s, body
// limit) in the same {"error": ...} shape as handled ones.
func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An unexpected error occurred"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(log.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("Unhandled error")
		}

		return c.Status(code).JSON(inference.ErrorResponse{Error: message})
	}
}
