// Package handlers exposes the HTTP front door: a push-delivery endpoint
// mirroring the broker consumer, plus health checks.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"fieldrouter/internal/dispatch"
	"fieldrouter/internal/errs"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/models"
	"fieldrouter/internal/pipeline"
)

// PushHandler accepts push-delivered envelopes over HTTP. The response
// status signals the delivery system: 2xx acknowledges the message (either
// processed or deliberately discarded), anything else requests redelivery.
type PushHandler struct {
	pipeline    *pipeline.Pipeline
	gateway     *dispatch.Gateway
	maxBodySize int64
	timeout     time.Duration
}

// PushConfig holds configuration for the push handler
type PushConfig struct {
	Pipeline    *pipeline.Pipeline
	Gateway     *dispatch.Gateway
	MaxBodySize int64
	Timeout     time.Duration
}

// NewPushHandler creates a new push handler
func NewPushHandler(cfg PushConfig) *PushHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &PushHandler{
		pipeline:    cfg.Pipeline,
		gateway:     cfg.Gateway,
		maxBodySize: maxBodySize,
		timeout:     timeout,
	}
}

// pushRequest is the push-delivery wrapper around one envelope.
type pushRequest struct {
	Message struct {
		Data        []byte            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ServeHTTP handles one pushed envelope
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("push_handler")

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req pushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid push payload")
		return
	}
	if len(req.Message.Data) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty message data")
		return
	}

	attributes := req.Message.Attributes
	if attributes == nil {
		attributes = map[string]string{}
	}
	if attributes[models.AttrIngestedAt] == "" && req.Message.PublishTime != "" {
		attributes[models.AttrIngestedAt] = req.Message.PublishTime
	}
	envelope := models.NewEnvelope(req.Message.Data, attributes)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err = h.pipeline.Process(ctx, envelope)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
	case errs.DeadLetter(err):
		reason := errs.Reason(err)
		if derr := h.gateway.DeadLetter(ctx, envelope, reason); derr != nil {
			// Could not record the discard; ask for redelivery.
			log.Error().Err(derr).Msg("dead-letter publish failed")
			h.writeError(w, http.StatusInternalServerError, "dead-letter unavailable")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"status": "discarded",
			"reason": reason,
		})
	default:
		log.Warn().Err(err).Str("message_id", req.Message.MessageID).Msg("processing failed, requesting redelivery")
		h.writeError(w, http.StatusInternalServerError, "processing failed")
	}
}

// writeJSON writes a JSON response
func (h *PushHandler) writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes an error response
func (h *PushHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"status": "error", "error": message})
}
