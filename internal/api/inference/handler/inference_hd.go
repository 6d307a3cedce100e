package inferenceHandler

import (
	"DefectVision/internal/api/inference"
	contextPkg "DefectVision/pkg/context"
	"DefectVision/pkg/handlerUtil"
	"DefectVision/pkg/log"
	"DefectVision/pkg/utils"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

func (h *InferenceHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := contextPkg.WithTimeout(ctx, h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, inference.ErrNoImage, ctx.Path(), "form_file")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"file_name":  file.Filename,
		"file_size":  file.Size,
	}).Debug("Processing image upload")

	data, err := h.utils.ReadImageFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, uploadError(err), ctx.Path(), "read_image_file")
	}

	result, err := h.inferenceService.Predict(c, inference.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Data:        data,
	})
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"defect":     result.Defect,
			"confidence": result.Confidence,
		}).Info("Prediction successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *InferenceHandler) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(h.inferenceService.Health())
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return inference.ErrNoImage
	case errors.Is(err, utils.ErrEmptyFile):
		return inference.ErrEmptyImage
	case errors.Is(err, utils.ErrFileTooLarge):
		return inference.ErrImageTooLarge
	default:
		return fmt.Errorf("read upload: %w", err)
	}
}
