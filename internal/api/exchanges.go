package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/inventory-gateway/internal/auth"
	"github.com/nerrad567/inventory-gateway/internal/bus"
)

// PublishRequest is the body of a bus publish.
type PublishRequest struct {
	RoutingKey string          `json:"routingKey"`
	Payload    json.RawMessage `json:"payload"`
}

// handlePublish publishes a message on an exchange of the internal bus.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bus is not configured")
		return
	}
	exchange := chi.URLParam(r, "exchange")

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RoutingKey == "" {
		writeBadRequest(w, "routingKey is required")
		return
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	if err := s.bus.Publish(exchange, req.RoutingKey, payload); err != nil {
		if errors.Is(err, bus.ErrInvalidExchange) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("publishing failed", "exchange", exchange, "routing_key", req.RoutingKey, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to publish")
		return
	}

	s.logger.Debug("bus message published",
		"exchange", exchange,
		"routing_key", req.RoutingKey,
		"subject", subjectFromContext(r.Context()),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"exchange":   exchange,
		"routingKey": req.RoutingKey,
	})
}

// claimsFromContext returns the token claims set by authMiddleware, or nil
// when auth is disabled.
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return claims
}

func subjectFromContext(ctx context.Context) string {
	if c := claimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
