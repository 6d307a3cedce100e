package inference

import (
	"DefectVision/pkg/response"
	"net/http"
)

var (
	ErrNoImage          = response.NewError(http.StatusBadRequest, "No image uploaded")
	ErrEmptyImage       = response.NewError(http.StatusBadRequest, "Uploaded image is empty")
	ErrImageTooLarge    = response.NewError(http.StatusBadRequest, "Uploaded image is too large")
	ErrUndecodableImage = response.NewError(http.StatusBadRequest, "Could not decode image")
)
