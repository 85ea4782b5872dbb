package logger

import (
	"context"
	"log/slog"

	"patscan/internal/middleware"
)

// ContextHandler stamps the correlation id carried in the context onto every
// record, so crawl-cycle and HTTP logs are greppable by id.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
