package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wisestar/internal/chat"
	"github.com/kalambet/wisestar/internal/conversation"
)

// ConversationSummary is one entry of GET /conversations.
type ConversationSummary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	MessageCount int        `json:"messageCount"`
	Current      bool       `json:"current"`
}

func summarize(convs []conversation.Conversation, currentID string) []ConversationSummary {
	out := make([]ConversationSummary, len(convs))
	for i, c := range convs {
		out[i] = ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: len(c.Messages),
			Current:      c.ID == currentID,
		}
	}
	return out
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Conversations
		writeJSON(w, http.StatusOK, summarize(s.Conversations(), s.CurrentID()))
	}
}

func handleCreateConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := deps.Conversations.CreateConversation()
		c, _ := deps.Conversations.Conversation(id)
		writeJSON(w, http.StatusCreated, c)
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := deps.Conversations.Conversation(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleSwitchConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.Conversations.SwitchConversation(id) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"current": id})
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted := deps.Conversations.DeleteConversation(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted": deleted,
			"current": deps.Conversations.CurrentID(),
		})
	}
}

// handleResetConversations drops the whole collection and its stored document.
func handleResetConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Conversations.Reset(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset conversations: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"current": deps.Conversations.CurrentID()})
	}
}

func handleExportConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := deps.Conversations.Conversation(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}

		now := time.Now()
		format := r.URL.Query().Get("format")
		switch format {
		case "", "markdown", "md":
			setAttachment(w, c.Title, now, "md")
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(conversation.ExportMarkdown(c, now)))
		case "json":
			data, err := conversation.ExportJSON(c, now)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to export conversation: %v", err)
				return
			}
			setAttachment(w, c.Title, now, "json")
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported export format %q", format)
		}
	}
}

func setAttachment(w http.ResponseWriter, title string, now time.Time, ext string) {
	name := fmt.Sprintf("%s_%d.%s", title, now.UnixMilli(), ext)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation_id": deps.Conversations.CurrentID(),
			"messages":        deps.Conversations.Messages(),
		})
	}
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.SendRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := deps.Chat.Send(r.Context(), req)
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text or image is required")
		case errors.Is(err, chat.ErrStaleConversation):
			writeJSON(w, http.StatusConflict, res)
		case err != nil:
			httpError(w, http.StatusServiceUnavailable, "api_error", "sending message: %v", err)
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

func handlePatchMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch conversation.MessagePatch
		if !decodeBody(w, r, &patch) {
			return
		}
		if !deps.Conversations.UpdateMessage(chi.URLParam(r, "id"), patch) {
			httpError(w, http.StatusNotFound, "not_found", "message not found in current conversation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleClearMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Conversations.ClearCurrentConversation()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
