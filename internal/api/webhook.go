package api

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/webberzone/gluelink/internal/webhook"
)

// Webhook request bodies are small; anything larger is hostile.
const maxWebhookBody = 256 * 1024

// WebhookHandler exposes the webhook processor over both transports. The
// REST binding follows the REST error convention (non-200 on gate
// failures, 200 otherwise); the query-variable binding reports every
// failure as a 400 plain-text response. The divergence is deliberate:
// each transport's callers rely on its conventional failure signaling.
type WebhookHandler struct {
	processor *webhook.Processor
	logger    *slog.Logger
}

func NewWebhookHandler(p *webhook.Processor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: p, logger: logger}
}

// restError is the {code, message} error shape the webhook source
// expects from the REST transport.
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type restMessage struct {
	Message string `json:"message"`
}

// Rest handles POST /glue-link/v1/webhook.
func (h *WebhookHandler) Rest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, restError{Code: webhook.CodeInvalidRequest, Message: "Invalid request body"})
		return
	}

	// The signature covers the exact raw bytes; authorization happens
	// before any decoding beyond the product lookup.
	if gateErr := h.processor.Authorize(body, r.Header.Get(webhook.SignatureHeader)); gateErr != nil {
		respondJSON(w, gateErr.HTTPStatus, restError{Code: gateErr.Code, Message: gateErr.Message})
		return
	}

	result, gateErr := h.processor.Process(r.Context(), body)
	if gateErr != nil {
		respondJSON(w, gateErr.HTTPStatus, restError{Code: gateErr.Code, Message: gateErr.Message})
		return
	}

	// Post-gate failures still return 200 so the event source does not
	// retry; operators diagnose via the logs.
	switch {
	case !result.Handled:
		respondJSON(w, http.StatusOK, restMessage{Message: webhook.MessageEventNotHandled})
	case result.Failed:
		respondJSON(w, http.StatusOK, restMessage{Message: webhook.MessageProcessedErrors})
	default:
		respondJSON(w, http.StatusOK, restMessage{Message: "Success"})
	}
}

// Query handles the legacy query-variable binding (POST /?glue_webhook=1).
func (h *WebhookHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("glue_webhook") == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		respondText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondText(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if gateErr := h.processor.Authorize(body, querySignature(r)); gateErr != nil {
		respondText(w, http.StatusBadRequest, gateErr.Message)
		return
	}

	result, gateErr := h.processor.Process(r.Context(), body)
	if gateErr != nil {
		respondText(w, http.StatusBadRequest, gateErr.Message)
		return
	}

	switch {
	case !result.Handled:
		respondText(w, http.StatusOK, result.Message)
	case result.Failed:
		respondText(w, http.StatusBadRequest, result.Message)
	default:
		respondText(w, http.StatusOK, result.Message)
	}
}

// querySignature finds the signature for the query-variable binding. Some
// front-end servers strip custom headers before they reach the handler,
// so after the canonical header it falls back to a case-insensitive scan
// and finally the CGI-normalized environment form.
func querySignature(r *http.Request) string {
	if sig := r.Header.Get(webhook.SignatureHeader); sig != "" {
		return sig
	}
	for name, values := range r.Header {
		if strings.EqualFold(name, webhook.SignatureHeader) && len(values) > 0 {
			return values[0]
		}
	}
	return os.Getenv("HTTP_X_SIGNATURE")
}
