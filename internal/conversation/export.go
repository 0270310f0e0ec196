package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type exportedMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

type exportDocument struct {
	Title      string            `json:"title"`
	ExportTime time.Time         `json:"exportTime"`
	Messages   []exportedMessage `json:"messages"`
}

// ExportJSON renders c as an indented JSON document.
func ExportJSON(c Conversation, now time.Time) ([]byte, error) {
	doc := exportDocument{
		Title:      c.Title,
		ExportTime: now,
		Messages:   make([]exportedMessage, len(c.Messages)),
	}
	for i, m := range c.Messages {
		doc.Messages[i] = exportedMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

type solveSummary struct {
	Answer     string `json:"answer"`
	Statistics *struct {
		TotalSteps       int `json:"total_steps"`
		ReasoningSteps   int `json:"reasoning_steps"`
		CalculationSteps int `json:"calculation_steps"`
	} `json:"statistics"`
}

type generateSummary struct {
	Problem      string  `json:"problem"`
	QualityScore float64 `json:"quality_score"`
}

// ExportMarkdown renders c as a Markdown transcript.
func ExportMarkdown(c Conversation, now time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", c.Title)
	fmt.Fprintf(&sb, "导出时间: %s\n\n", now.Format("2006-01-02 15:04:05"))
	sb.WriteString("---\n\n")

	for _, m := range c.Messages {
		label := "🤖 助手"
		if m.Role == RoleUser {
			label = "👤 用户"
		}
		if m.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "## %s\n\n", label)
		} else {
			fmt.Fprintf(&sb, "## %s (%s)\n\n", label, m.Timestamp.Format("15:04"))
		}
		fmt.Fprintf(&sb, "%s\n\n", m.Content)

		if m.Metadata != nil {
			writeMetadataSection(&sb, m.Metadata)
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

func writeMetadataSection(sb *strings.Builder, md *Metadata) {
	switch md.Type {
	case MetadataSolve:
		var s solveSummary
		if json.Unmarshal(md.Data, &s) != nil || s.Answer == "" {
			return
		}
		sb.WriteString("### 📊 解题结果\n\n")
		fmt.Fprintf(sb, "**答案**: %s\n\n", s.Answer)
		if s.Statistics != nil {
			fmt.Fprintf(sb, "- 总步数: %d\n", s.Statistics.TotalSteps)
			fmt.Fprintf(sb, "- 推理步数: %d\n", s.Statistics.ReasoningSteps)
			fmt.Fprintf(sb, "- 计算步数: %d\n\n", s.Statistics.CalculationSteps)
		}
	case MetadataGenerate:
		var g generateSummary
		if json.Unmarshal(md.Data, &g) != nil || g.Problem == "" {
			return
		}
		sb.WriteString("### 📝 生成的题目\n\n")
		fmt.Fprintf(sb, "%s\n\n", g.Problem)
		if g.QualityScore > 0 {
			fmt.Fprintf(sb, "**质量评分**: %g/10\n\n", g.QualityScore)
		}
	}
}
