package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
	"github.com/shestoi/bookstore-orders/internal/service"
	"github.com/shestoi/bookstore-orders/platform/observability"
)

// OrderCompleter - то, что handler-у нужно от service слоя
type OrderCompleter interface {
	CompleteString(ctx context.Context, raw string) (domain.OrderID, error)
}

// Handler содержит HTTP-обработчики команд над заказами
type Handler struct {
	completer OrderCompleter
	logger    *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(completer OrderCompleter, logger *zap.Logger) *Handler {
	return &Handler{
		completer: completer,
		logger:    logger,
	}
}

// PostOrderComplete обрабатывает POST /orders/{id}/complete.
// 202 - событие опубликовано, 400 - некорректный id, 500 - завершение не удалось.
func (h *Handler) PostOrderComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)
	raw := chi.URLParam(r, "id")

	id, err := h.completer.CompleteString(ctx, raw)
	if err != nil {
		var valErr *domain.ValidationError
		if errors.As(err, &valErr) {
			logger.Warn("invalid order id", zap.String("order_id", raw), zap.Error(err))
			writeText(w, http.StatusBadRequest, "Invalid order ID: "+valErr.Message)
			return
		}

		cause := err
		var compErr *service.CompletionError
		if errors.As(err, &compErr) {
			cause = compErr.Err
		}
		logger.Error("order completion failed", zap.String("order_id", raw), zap.Error(err))
		writeText(w, http.StatusInternalServerError, fmt.Sprintf("Failed to complete order %s: %v", raw, cause))
		return
	}

	writeText(w, http.StatusAccepted, fmt.Sprintf("Order %s completed (event published)", id))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
