// Package api exposes the tutor over a JSON HTTP API and an MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wisestar/internal/backend"
	"github.com/kalambet/wisestar/internal/chat"
	"github.com/kalambet/wisestar/internal/conversation"
	"github.com/kalambet/wisestar/internal/storage"
)

const maxRequestBodySize = 8 << 20 // 8MB, room for inline images

// Sender sends one chat message through the dispatch flow.
type Sender interface {
	Send(ctx context.Context, req chat.SendRequest) (chat.SendResult, error)
}

// InteractionLog is the read side of the interaction log.
type InteractionLog interface {
	ListInteractions(limit, offset int) ([]storage.Interaction, error)
	GetInteraction(id string) (storage.Interaction, error)
	InteractionStats() ([]storage.IntentCount, error)
}

// Tutor is the slice of the backend client passed through to API callers.
type Tutor interface {
	Daily(ctx context.Context) (*backend.DailyQuestion, error)
	SubmitDaily(ctx context.Context, sub backend.DailySubmission) (*backend.DailyVerdict, error)
	ExecutePlot(ctx context.Context, code string) (*backend.PlotImage, error)
	GeneratePlot(ctx context.Context, description string) (*backend.PlotCode, error)
}

// Deps holds the dependencies of the HTTP API.
type Deps struct {
	Conversations *conversation.Store
	Chat          Sender
	Interactions  InteractionLog
	Tutor         Tutor
	// Token guards every route except /health and /metrics. Empty disables auth.
	Token   string
	Metrics http.Handler // optional; served at /metrics
	Logger  *slog.Logger
}

// NewHandler builds the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/conversations", handleListConversations(deps))
		r.Post("/conversations", handleCreateConversation(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Post("/conversations/{id}/switch", handleSwitchConversation(deps))
		r.Delete("/conversations", handleResetConversations(deps))
		r.Delete("/conversations/{id}", handleDeleteConversation(deps))
		r.Get("/conversations/{id}/export", handleExportConversation(deps))

		r.Get("/messages", handleListMessages(deps))
		r.Post("/messages", handleSendMessage(deps))
		r.Patch("/messages/{id}", handlePatchMessage(deps))
		r.Delete("/messages", handleClearMessages(deps))

		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/stats", handleInteractionStats(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))

		r.Get("/daily", handleDaily(deps))
		r.Post("/daily/submit", handleSubmitDaily(deps))
		r.Post("/plot/generate", handleGeneratePlot(deps))
		r.Post("/plot/execute", handleExecutePlot(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
