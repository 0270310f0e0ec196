package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/wisestar/internal/backend"
	"github.com/kalambet/wisestar/internal/conversation"
)

// mockTutor implements Tutor for testing.
type mockTutor struct {
	solve    *backend.SolveResult
	generate *backend.GenerateResult
	stats    *backend.Statistics
	memory   *backend.Memory
	err      error
	delay    time.Duration

	calls   []string
	lastGen backend.GenerateRequest
}

func (m *mockTutor) wait(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockTutor) Solve(ctx context.Context, question string) (*backend.SolveResult, error) {
	m.calls = append(m.calls, "solve")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.solve, nil
}

func (m *mockTutor) Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResult, error) {
	m.calls = append(m.calls, "generate")
	m.lastGen = req
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.generate, nil
}

func (m *mockTutor) Statistics(ctx context.Context) (*backend.Statistics, error) {
	m.calls = append(m.calls, "statistics")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.stats, nil
}

func (m *mockTutor) Memory(ctx context.Context, f backend.MemoryFilter) (*backend.Memory, error) {
	m.calls = append(m.calls, "memory")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.memory, nil
}

func fullTutor() *mockTutor {
	return &mockTutor{
		solve: &backend.SolveResult{
			Answer: "公比 q = 2",
			Steps:  []backend.SolveStep{{Type: "reasoning", Content: "设首项为a₁"}},
			Statistics: backend.SolveStatistics{
				TotalSteps: 1, ReasoningSteps: 1, TimeUsed: "2.3s",
			},
		},
		generate: &backend.GenerateResult{Problem: "已知函数 f(x) = x³ - 3ax + b", QualityScore: 8.5},
		stats: &backend.Statistics{
			Total: 25, SuccessRate: 0.76,
			WeakPoints:     []string{"立体几何", "数列"},
			MasteredPoints: []string{"函数", "三角函数"},
		},
		memory: &backend.Memory{
			Total:       3,
			SuccessRate: 0.67,
			WeakPoints:  []string{"立体几何"},
			Records: []backend.MemoryRecord{
				{Question: "函数最值问题", Success: true},
				{Question: "立体几何证明", Success: false},
			},
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"帮我解题 2+2", Solve},
		{"求解方程", Solve},
		{"计算 3*7", Solve},
		{"请帮我求解这道生成的题目", Solve},
		{"生成一道函数题", Generate},
		{"给我出题", Generate},
		{"来一道题目", Generate},
		{"统计一下", Statistics},
		{"我的数据", Statistics},
		{"分析学习情况", Statistics},
		{"看看错题", Memory},
		{"我的记忆", Memory},
		{"历史记录", Memory},
		{"分析我的错题", Statistics},
		{"你好", Fallback},
		{"", Fallback},
		{"   \t\n", Fallback},
		{"Solve 2x+3=7", Fallback},
	}
	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDispatch_PriorityFirstMatch(t *testing.T) {
	tutor := fullTutor()
	d := NewDispatcher(tutor)

	resp := d.Dispatch(context.Background(), "请帮我求解这道生成的题目")
	if resp.Intent != Solve {
		t.Errorf("Intent = %v, want solve", resp.Intent)
	}
	if len(tutor.calls) != 1 || tutor.calls[0] != "solve" {
		t.Errorf("calls = %v, want [solve]", tutor.calls)
	}
	if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataSolve {
		t.Fatalf("Metadata = %+v, want solve_result", resp.Metadata)
	}
}

func TestDispatch_Fallback(t *testing.T) {
	for _, text := range []string{"", "你好", "   "} {
		tutor := fullTutor()
		resp := NewDispatcher(tutor).Dispatch(context.Background(), text)
		if resp.Content != FallbackMessage {
			t.Errorf("Dispatch(%q).Content = %q, want fallback", text, resp.Content)
		}
		if resp.Metadata != nil {
			t.Errorf("Dispatch(%q).Metadata = %+v, want nil", text, resp.Metadata)
		}
		if len(tutor.calls) != 0 {
			t.Errorf("Dispatch(%q) called backend: %v", text, tutor.calls)
		}
	}
}

func TestDispatch_Solve(t *testing.T) {
	resp := NewDispatcher(fullTutor()).Dispatch(context.Background(), "帮我解题：等比数列求公比")
	if resp.Content != solveReply {
		t.Errorf("Content = %q", resp.Content)
	}

	var data backend.SolveResult
	if err := json.Unmarshal(resp.Metadata.Data, &data); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if data.Answer != "公比 q = 2" || data.Statistics.TotalSteps != 1 {
		t.Errorf("metadata data = %+v", data)
	}
}

func TestDispatch_Generate(t *testing.T) {
	tutor := fullTutor()
	resp := NewDispatcher(tutor).Dispatch(context.Background(), "  生成一道困难的函数题 ")
	if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataGenerate {
		t.Fatalf("Metadata = %+v, want generate_result", resp.Metadata)
	}
	if resp.Content != generateReply {
		t.Errorf("Content = %q", resp.Content)
	}
	if tutor.lastGen.Scenario != "生成一道困难的函数题" {
		t.Errorf("Scenario = %q", tutor.lastGen.Scenario)
	}
	if tutor.lastGen.Difficulty != "困难" {
		t.Errorf("Difficulty = %q, want 困难", tutor.lastGen.Difficulty)
	}
}

func TestDispatch_Statistics(t *testing.T) {
	resp := NewDispatcher(fullTutor()).Dispatch(context.Background(), "看看我的统计")
	if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataStatistics {
		t.Fatalf("Metadata = %+v, want statistics", resp.Metadata)
	}
	var data statisticsData
	if err := json.Unmarshal(resp.Metadata.Data, &data); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if data.TotalQuestions != 25 || data.SuccessRate != 0.76 {
		t.Errorf("data = %+v", data)
	}
	for _, want := range []string{"**25 道题目**", "**76%**", "立体几何、数列", "函数、三角函数", "建议多练习立体几何"} {
		if !strings.Contains(resp.Content, want) {
			t.Errorf("Content missing %q:\n%s", want, resp.Content)
		}
	}
}

func TestDispatch_MemoryIsTextOnly(t *testing.T) {
	resp := NewDispatcher(fullTutor()).Dispatch(context.Background(), "复习一下错题")
	if resp.Intent != Memory {
		t.Errorf("Intent = %v", resp.Intent)
	}
	if resp.Metadata != nil {
		t.Errorf("Metadata = %+v, want nil", resp.Metadata)
	}
	for _, want := range []string{"1. 函数最值问题 - ✅ 成功", "2. 立体几何证明 - ❌ 失败", "- 立体几何"} {
		if !strings.Contains(resp.Content, want) {
			t.Errorf("Content missing %q:\n%s", want, resp.Content)
		}
	}
}

func TestDispatch_ErrorContainment(t *testing.T) {
	tutor := &mockTutor{err: backend.ErrUnavailable}
	resp := NewDispatcher(tutor).Dispatch(context.Background(), "帮我解题 2+2")

	if resp.Content != ApologyMessage {
		t.Errorf("Content = %q, want apology", resp.Content)
	}
	if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataError {
		t.Fatalf("Metadata = %+v, want error", resp.Metadata)
	}
	var data struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Metadata.Data, &data); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if !strings.Contains(data.Message, backend.ErrUnavailable.Error()) {
		t.Errorf("message = %q", data.Message)
	}
	if !errors.Is(resp.Err, backend.ErrUnavailable) {
		t.Errorf("Err = %v, want ErrUnavailable", resp.Err)
	}
}

func TestDispatch_ErrorForEveryDelegatingIntent(t *testing.T) {
	for _, text := range []string{"求解", "出题", "统计", "错题"} {
		tutor := &mockTutor{err: errors.New("boom")}
		resp := NewDispatcher(tutor).Dispatch(context.Background(), text)
		if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataError {
			t.Errorf("Dispatch(%q).Metadata = %+v, want error", text, resp.Metadata)
		}
	}
}

func TestDispatch_ContextCancelled(t *testing.T) {
	tutor := fullTutor()
	tutor.delay = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp := NewDispatcher(tutor).Dispatch(ctx, "计算 1+1")
	if time.Since(start) > time.Second {
		t.Errorf("Dispatch did not honour cancellation")
	}
	if !errors.Is(resp.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", resp.Err)
	}
	if resp.Metadata == nil || resp.Metadata.Type != conversation.MetadataError {
		t.Errorf("Metadata = %+v, want error", resp.Metadata)
	}
}

func TestFormatMemory_Empty(t *testing.T) {
	got := FormatMemory(&backend.Memory{})
	if !strings.Contains(got, "还没有记录") {
		t.Errorf("FormatMemory(empty) = %q", got)
	}
}

func TestFormatMemory_CapsRecords(t *testing.T) {
	m := &backend.Memory{Total: 8}
	for i := 0; i < 8; i++ {
		m.Records = append(m.Records, backend.MemoryRecord{Question: "q", Success: true})
	}
	got := FormatMemory(m)
	if !strings.Contains(got, "5. q") || strings.Contains(got, "6. q") {
		t.Errorf("expected exactly %d records:\n%s", maxMemoryRecords, got)
	}
}

func TestFormatStatistics_NoWeakPoints(t *testing.T) {
	got := FormatStatistics(&backend.Statistics{Total: 3, SuccessRate: 1})
	if strings.Contains(got, "建议") {
		t.Errorf("unexpected suggestion:\n%s", got)
	}
	if !strings.Contains(got, "薄弱知识点：暂无") {
		t.Errorf("missing placeholder:\n%s", got)
	}
}
