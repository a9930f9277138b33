package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lumipay/paygate/internal/gateway/domain"
)

const maxCallbackBodySize = 1 << 20 // 1 MB

// CallbackProcessor defines the interface the callback handler needs for
// reconciling provider notifications. This makes testing easier by allowing
// mocks.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, params map[string]string, secretKey string) (string, error)
}

type CallbackHandler struct {
	reconciler CallbackProcessor
	secretKey  string
	logger     *slog.Logger
}

func NewCallbackHandler(reconciler CallbackProcessor, secretKey string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconciler: reconciler,
		secretKey:  secretKey,
		logger:     logger.With("handler", "callback"),
	}
}

// RegisterRoutes registers the notification route. The provider delivers
// callbacks as GET with query parameters or POST with a form or JSON body, so
// both methods share one handler.
func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notify", h.HandleNotification)
	r.Post("/notify", h.HandleNotification)
}

// HandleNotification receives settlement callbacks from the payment provider.
// The provider treats any response body other than the literal ack string as a
// delivery failure and will retry, so error statuses are deliberate signals.
func (h *CallbackHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	params, err := h.extractParams(w, r)
	if err != nil {
		logger.WarnContext(ctx, "Failed to parse callback parameters", "error", err, "method", r.Method)
		http.Error(w, "Malformed callback payload", http.StatusBadRequest)
		return
	}

	logger.InfoContext(ctx, "Received provider callback",
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
		"order_no", params["orderNo"],
		"order_status", params["orderStatus"])

	ack, err := h.reconciler.HandleCallback(ctx, params, h.secretKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignatureInvalid):
			logger.WarnContext(ctx, "Callback signature verification failed", "order_no", params["orderNo"])
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
		case errors.Is(err, domain.ErrNotFound):
			logger.WarnContext(ctx, "Callback for unknown order", "order_no", params["orderNo"])
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrUnknownStatus):
			logger.WarnContext(ctx, "Callback carried unrecognized status", "order_no", params["orderNo"], "order_status", params["orderStatus"])
			http.Error(w, "Unrecognized order status", http.StatusBadRequest)
		default:
			logger.ErrorContext(ctx, "Error processing provider callback", "error", err, "order_no", params["orderNo"])
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ack); err != nil {
		logger.WarnContext(ctx, "Failed to write callback ack", "error", err)
	}
	logger.InfoContext(ctx, "Provider callback processed", "order_no", params["orderNo"])
}

// extractParams flattens the callback payload into a single string map
// regardless of delivery shape: query string on GET, urlencoded form or JSON
// object on POST.
func (h *CallbackHandler) extractParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	if r.Method == http.MethodGet {
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		decoder := json.NewDecoder(r.Body)
		// Provider numeric fields are documented as strings, but tolerate bare
		// numbers without losing precision.
		decoder.UseNumber()
		var payload map[string]any
		if err := decoder.Decode(&payload); err != nil {
			return nil, err
		}
		for key, value := range payload {
			switch v := value.(type) {
			case string:
				params[key] = v
			case json.Number:
				params[key] = v.String()
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params, nil
}
