// Package intent classifies a free-text utterance into one of a fixed set of
// tutoring intents and resolves it into an assistant reply.
package intent

import "strings"

// Intent is the classified purpose of a user utterance.
type Intent int

const (
	Fallback Intent = iota
	Solve
	Generate
	Statistics
	Memory
)

func (i Intent) String() string {
	switch i {
	case Solve:
		return "solve"
	case Generate:
		return "generate"
	case Statistics:
		return "statistics"
	case Memory:
		return "memory"
	default:
		return "fallback"
	}
}

// rule pairs a predicate over normalised text with the intent it selects.
type rule struct {
	intent  Intent
	matches func(text string) bool
}

func containsAny(keywords ...string) func(string) bool {
	return func(text string) bool {
		for _, k := range keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{Solve, containsAny("解题", "求解", "计算")},
	{Generate, containsAny("生成", "出题", "题目")},
	{Statistics, containsAny("统计", "数据", "分析")},
	{Memory, containsAny("错题", "记忆", "历史")},
}

// Classify returns the first intent whose keywords occur in text. Matching
// is a case-insensitive substring test on the trimmed text; anything that
// matches no rule, including empty input, is Fallback.
func Classify(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, r := range rules {
		if r.matches(normalized) {
			return r.intent
		}
	}
	return Fallback
}
