package inferenceHandler

import (
	"DefectVision/internal/api/inference"
	"DefectVision/internal/middleware"
	contextPkg "DefectVision/pkg/context"
	"DefectVision/pkg/handlerUtil"
	"DefectVision/pkg/log"
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	maxReadTimeout = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// handlePredictWebSocket classifies each binary frame as one image and answers
// with the same JSON body POST /predict would return.
func (h *InferenceHandler) handlePredictWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	fields := log.Fields{"request_id": requestID}

	h.log.WithFields(fields).Info("Prediction WebSocket client connected")
	defer h.log.WithFields(fields).Info("Prediction WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.WithFields(fields).Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for frame := 0; ; frame++ {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			h.log.WithFields(fields).Errorf("Error setting read deadline: %v", err)
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithFields(fields).Errorf("Prediction WebSocket error: %v", err)
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			h.log.WithFields(fields).Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			h.log.WithFields(fields).Errorf("Error setting write deadline: %v", err)
			return
		}
		if err := c.WriteJSON(h.predictFrame(requestID, frame, message)); err != nil {
			h.log.WithFields(fields).Errorf("Error writing JSON response: %v", err)
			return
		}
	}
}

func (h *InferenceHandler) predictFrame(requestID string, frame int, message []byte) interface{} {
	ctx := contextPkg.WithRequestID(context.Background(), requestID)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.inferenceService.Predict(ctx, inference.Upload{Data: message})
	if err != nil {
		status, msg := handlerUtil.Resolve(err)
		log.Warn(log.Fields{
			"request_id": requestID,
			"frame":      frame,
			"status":     status,
			"error":      err.Error(),
		}, "Frame prediction failed")
		return inference.ErrorResponse{Error: msg}
	}

	return result
}
