package intent

import (
	"fmt"
	"strings"

	"github.com/kalambet/wisestar/internal/backend"
)

// FallbackMessage is returned for utterances that match no intent.
const FallbackMessage = "我是WiseStar数学助手，我可以帮你：\n\n" +
	"1. **解题** - 输入数学题目，我会帮你求解\n" +
	"2. **出题** - 根据知识点生成练习题\n" +
	"3. **查看统计** - 分析你的学习数据\n" +
	"4. **查看错题** - 回顾学习历史\n\n" +
	"请告诉我你需要什么帮助？"

// ApologyMessage is the user-facing content of an error reply.
const ApologyMessage = "抱歉，处理您的请求时出现错误，请稍后重试。"

const (
	solveReply    = "我已经完成了这道题的求解，以下是详细的解题过程："
	generateReply = "我已经为你生成了一道高质量的数学题目："
)

// maxMemoryRecords caps the recent attempts listed in a memory summary.
const maxMemoryRecords = 5

func joinOrNone(points []string) string {
	if len(points) == 0 {
		return "暂无"
	}
	return strings.Join(points, "、")
}

// FormatStatistics renders a statistics report as a chat reply.
func FormatStatistics(st *backend.Statistics) string {
	var sb strings.Builder
	sb.WriteString("这是你最近的学习统计数据：\n\n")
	fmt.Fprintf(&sb, "- 总共完成了 **%d 道题目**\n", st.Total)
	fmt.Fprintf(&sb, "- 成功率为 **%.0f%%**\n", st.SuccessRate*100)
	fmt.Fprintf(&sb, "- 薄弱知识点：%s\n", joinOrNone(st.WeakPoints))
	fmt.Fprintf(&sb, "- 已掌握知识点：%s", joinOrNone(st.MasteredPoints))
	if len(st.WeakPoints) > 0 {
		fmt.Fprintf(&sb, "\n\n建议多练习%s相关的题目来提升薄弱环节。", st.WeakPoints[0])
	}
	return sb.String()
}

// FormatMemory renders a learning-memory report as a chat reply.
func FormatMemory(m *backend.Memory) string {
	if m.Total == 0 && len(m.Records) == 0 && len(m.WeakPoints) == 0 {
		return "你的学习记忆中还没有记录，先去做几道题吧！"
	}

	var sb strings.Builder
	sb.WriteString("你的学习记忆中有以下内容：")
	fmt.Fprintf(&sb, "\n\n共 **%d** 条解题记录，成功率 **%.0f%%**", m.Total, m.SuccessRate*100)

	if len(m.Records) > 0 {
		sb.WriteString("\n\n**最近解题记录：**")
		for i, r := range m.Records {
			if i == maxMemoryRecords {
				break
			}
			mark := "❌ 失败"
			if r.Success {
				mark = "✅ 成功"
			}
			fmt.Fprintf(&sb, "\n%d. %s - %s", i+1, r.Question, mark)
		}
	}

	if len(m.WeakPoints) > 0 {
		sb.WriteString("\n\n**薄弱知识点：**")
		for _, p := range m.WeakPoints {
			fmt.Fprintf(&sb, "\n- %s", p)
		}
		sb.WriteString("\n\n建议针对这些薄弱点进行专项练习。")
	}
	return sb.String()
}
