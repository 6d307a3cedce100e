package static

import (
	"DefectVision/pkg/response"
	"net/http"
)

var ErrNotFound = response.NewError(http.StatusNotFound, "not found")
