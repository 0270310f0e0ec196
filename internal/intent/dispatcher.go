package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/wisestar/internal/backend"
	"github.com/kalambet/wisestar/internal/conversation"
)

// Tutor is the subset of the backend client the dispatcher delegates to.
type Tutor interface {
	Solve(ctx context.Context, question string) (*backend.SolveResult, error)
	Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResult, error)
	Statistics(ctx context.Context) (*backend.Statistics, error)
	Memory(ctx context.Context, f backend.MemoryFilter) (*backend.Memory, error)
}

// Response is the assistant reply produced for one utterance.
type Response struct {
	Intent   Intent                 `json:"-"`
	Content  string                 `json:"content"`
	Metadata *conversation.Metadata `json:"metadata,omitempty"`
	// Err is the delegation failure behind an error-shaped reply, nil otherwise.
	Err error `json:"-"`
}

type handlerFunc func(ctx context.Context, text string) (Response, error)

// Dispatcher resolves utterances into replies by classifying them and
// delegating to the tutoring backend.
type Dispatcher struct {
	tutor    Tutor
	handlers map[Intent]handlerFunc
}

// NewDispatcher creates a Dispatcher delegating to tutor.
func NewDispatcher(tutor Tutor) *Dispatcher {
	d := &Dispatcher{tutor: tutor}
	d.handlers = map[Intent]handlerFunc{
		Solve:      d.handleSolve,
		Generate:   d.handleGenerate,
		Statistics: d.handleStatistics,
		Memory:     d.handleMemory,
	}
	return d
}

// Dispatch classifies text and resolves it into exactly one Response. It never
// fails: delegation errors, including ctx cancellation, come back as an
// error-shaped reply with Err set.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) Response {
	in := Classify(text)
	h, ok := d.handlers[in]
	if !ok {
		return Response{Intent: Fallback, Content: FallbackMessage}
	}

	resp, err := h(ctx, text)
	if err != nil {
		slog.Warn("intent delegation failed", "intent", in.String(), "error", err)
		return errorResponse(in, err)
	}
	resp.Intent = in
	return resp
}

func errorResponse(in Intent, err error) Response {
	md, mdErr := conversation.NewMetadata(conversation.MetadataError, map[string]string{"message": err.Error()})
	if mdErr != nil {
		md = &conversation.Metadata{Type: conversation.MetadataError}
	}
	return Response{
		Intent:   in,
		Content:  ApologyMessage,
		Metadata: md,
		Err:      err,
	}
}

func (d *Dispatcher) handleSolve(ctx context.Context, text string) (Response, error) {
	res, err := d.tutor.Solve(ctx, text)
	if err != nil {
		return Response{}, fmt.Errorf("solving: %w", err)
	}
	md, err := conversation.NewMetadata(conversation.MetadataSolve, res)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: solveReply, Metadata: md}, nil
}

func (d *Dispatcher) handleGenerate(ctx context.Context, text string) (Response, error) {
	res, err := d.tutor.Generate(ctx, generateRequestFor(text))
	if err != nil {
		return Response{}, fmt.Errorf("generating: %w", err)
	}
	md, err := conversation.NewMetadata(conversation.MetadataGenerate, res)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: generateReply, Metadata: md}, nil
}

type statisticsData struct {
	TotalQuestions int     `json:"total_questions"`
	SuccessRate    float64 `json:"success_rate"`
}

func (d *Dispatcher) handleStatistics(ctx context.Context, _ string) (Response, error) {
	st, err := d.tutor.Statistics(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("fetching statistics: %w", err)
	}
	md, err := conversation.NewMetadata(conversation.MetadataStatistics, statisticsData{
		TotalQuestions: st.Total,
		SuccessRate:    st.SuccessRate,
	})
	if err != nil {
		return Response{}, err
	}
	return Response{Content: FormatStatistics(st), Metadata: md}, nil
}

func (d *Dispatcher) handleMemory(ctx context.Context, _ string) (Response, error) {
	m, err := d.tutor.Memory(ctx, backend.MemoryFilter{})
	if err != nil {
		return Response{}, fmt.Errorf("fetching memory: %w", err)
	}
	return Response{Content: FormatMemory(m)}, nil
}

// difficultyLevels are recognised in generate requests, most specific first.
var difficultyLevels = []string{"高考压轴题", "竞赛级", "困难", "中等", "简单"}

// generateRequestFor turns a chat utterance into a generation request. The
// whole utterance is the scenario; a named difficulty level is picked out.
func generateRequestFor(text string) backend.GenerateRequest {
	gr := backend.GenerateRequest{Scenario: strings.TrimSpace(text)}
	for _, lvl := range difficultyLevels {
		if strings.Contains(text, lvl) {
			gr.Difficulty = lvl
			break
		}
	}
	return gr
}
