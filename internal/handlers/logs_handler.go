package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

// LogsHandler accepts log batches shipped by the rendered web application
// and appends them as JSON lines to a dedicated sink.
type LogsHandler struct {
	sink io.Writer
	log  *zap.Logger
	mu   sync.Mutex
}

type LogEntry struct {
	Timestamp string                 `json:"timestamp" binding:"max=64"`
	Level     string                 `json:"level" binding:"required,oneof=debug info warn error"`
	Message   string                 `json:"message" binding:"required,max=4096"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type LogBatchRequest struct {
	Logs []LogEntry `json:"logs" binding:"required,max=100,dive"`
}

// NewLogsHandler creates a handler writing to sink, typically a rotated
// file from logger.NewRotatingFile.
func NewLogsHandler(sink io.Writer, log *zap.Logger) *LogsHandler {
	return &LogsHandler{
		sink: sink,
		log:  logger.OrNop(log),
	}
}

// ReceiveFrontendLogs handles POST /api/logs
func (h *LogsHandler) ReceiveFrontendLogs(c *gin.Context) {
	var req LogBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if len(req.Logs) == 0 {
		respondError(c, http.StatusBadRequest, "No logs provided", nil)
		return
	}

	if err := h.write(req.Logs); err != nil {
		h.log.Error("Failed to write frontend logs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to write logs", err)
		return
	}

	h.log.Debug("Received frontend logs", zap.Int("count", len(req.Logs)))
	c.JSON(http.StatusOK, gin.H{"success": true, "received": len(req.Logs)})
}

func (h *LogsHandler) write(logs []LogEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	encoder := json.NewEncoder(h.sink)
	for _, entry := range logs {
		// Same shape as the gateway's own JSON logs
		line := make(map[string]interface{}, len(entry.Context)+4)
		for k, v := range entry.Context {
			line[k] = v
		}
		line["timestamp"] = entry.Timestamp
		line["level"] = entry.Level
		line["msg"] = entry.Message
		line["service"] = "portal-web"

		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("failed to encode log entry: %w", err)
		}
	}

	return nil
}
