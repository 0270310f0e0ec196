// Package chat implements the message-send flow: append the user message,
// resolve a reply, and append the reply to the conversation it belongs to.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/wisestar/internal/conversation"
	"github.com/kalambet/wisestar/internal/intent"
	"github.com/kalambet/wisestar/internal/storage"
)

// ErrStaleConversation is returned when the user switched away from the
// conversation a reply was produced for. The reply is not appended.
var ErrStaleConversation = errors.New("conversation changed while reply was pending")

// ErrEmptyMessage is returned for a send with neither text nor image.
var ErrEmptyMessage = errors.New("message has no text or image")

// Dispatcher resolves one utterance into a reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) intent.Response
}

// InteractionRecorder persists the outcome of each dispatch.
type InteractionRecorder interface {
	SaveInteraction(i storage.Interaction) error
}

// SendRequest is one user message.
type SendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// SendResult is what a send produced. Reply is the zero Message when the
// reply was dropped as stale; Response still carries it.
type SendResult struct {
	ConversationID string               `json:"conversation_id"`
	Intent         string               `json:"intent"`
	User           conversation.Message `json:"user"`
	Reply          conversation.Message `json:"reply"`
	Response       intent.Response      `json:"response"`
}

// Service is the single entry point for sending chat messages. One send is
// processed at a time; later calls wait their turn.
type Service struct {
	store      *conversation.Store
	dispatcher Dispatcher
	recorder   InteractionRecorder
	metrics    *Metrics

	turn chan struct{}
}

// NewService creates a Service. recorder and metrics may be nil.
func NewService(store *conversation.Store, d Dispatcher, recorder InteractionRecorder, metrics *Metrics) *Service {
	return &Service{
		store:      store,
		dispatcher: d,
		recorder:   recorder,
		metrics:    metrics,
		turn:       make(chan struct{}, 1),
	}
}

// Send appends the user message to the current conversation, dispatches it,
// and appends the reply. If the current conversation changed while the
// reply was pending, the reply is dropped and ErrStaleConversation returned
// together with the result.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if strings.TrimSpace(req.Text) == "" && req.Image == "" {
		return SendResult{}, ErrEmptyMessage
	}

	select {
	case s.turn <- struct{}{}:
		defer func() { <-s.turn }()
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	}

	user, convID := s.store.AddCurrentMessage(conversation.Message{
		Role:    conversation.RoleUser,
		Content: req.Text,
		Image:   req.Image,
	})

	start := time.Now()
	resp := s.dispatcher.Dispatch(ctx, req.Text)
	elapsed := time.Since(start)

	result := SendResult{
		ConversationID: convID,
		Intent:         resp.Intent.String(),
		User:           user,
		Response:       resp,
	}

	status := storage.StatusCompleted
	if resp.Err != nil {
		status = storage.StatusFailed
	}

	reply, ok := s.store.AddMessageIfCurrent(convID, conversation.Message{
		Role:     conversation.RoleAssistant,
		Content:  resp.Content,
		Metadata: resp.Metadata,
	})
	if !ok {
		status = storage.StatusDropped
		slog.Info("dropping reply for conversation that is no longer current",
			"conversation_id", convID, "intent", result.Intent)
	}
	result.Reply = reply

	s.record(convID, req.Text, resp, status, start, elapsed)

	if !ok {
		return result, ErrStaleConversation
	}
	return result, nil
}

func (s *Service) record(convID, query string, resp intent.Response, status string, start time.Time, elapsed time.Duration) {
	in := resp.Intent.String()
	s.metrics.observe(in, status, elapsed)

	if s.recorder == nil {
		return
	}
	i := storage.Interaction{
		ID:             uuid.New().String(),
		CreatedAt:      start.UTC(),
		ConversationID: convID,
		UserQuery:      query,
		Intent:         in,
		Status:         status,
		DurationMs:     elapsed.Milliseconds(),
	}
	if resp.Err != nil {
		i.Error = resp.Err.Error()
	}
	if err := s.recorder.SaveInteraction(i); err != nil {
		slog.Warn("failed to record interaction", "id", i.ID, "error", err)
	}
}
