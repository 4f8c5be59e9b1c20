// Package message builds the ordered LM message list each turn (C7): one
// fixed framework system message, the caller's additional messages, and a
// user message carrying the goal, tool catalog, action contract, and
// condensed turn history.
package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
)

// systemPrompt is the fixed, framework-owned prompt that encodes the output
// contract (spec.md §4.9 step 1). It never varies per run.
const systemPrompt = `You are an autonomous agent operating a turn-based control loop.

Respond with a single JSON object only — no prose before or after it, no
code fences. The object has this shape:

  {
    "thoughts": "<brief rationale>",
    "action": "tool_call" | "multi_tool_call" | "plan" | "finish" | "retry",
    "action_input": <action-specific payload, see ACTIONS below>,
    "status_title": "<optional, <=60 chars>",
    "status_details": "<optional, <=160 chars>",
    "next_step_hint": "<optional, <=60 chars>",
    "progress_pct": <optional 0-100>
  }

Tool names are used exactly as listed in TOOL CATALOG, with no prefix.`

// Options controls the condensation policy (spec.md §4.9).
type Options struct {
	MaxRecentTurns             int
	EnableHistorySummarization bool
	MaxToolOutputSize          int
	EmitPublicStatus           bool
}

// Build assembles the ordered message list for one LM call.
func Build(st *state.AgentState, tools []tool.Tool, opts Options) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	for _, m := range st.AdditionalMessages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildUserMessage(st, tools, opts)})
	return messages
}

func buildUserMessage(st *state.AgentState, tools []tool.Tool, opts Options) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "GOAL: %s\n\n", st.Goal)

	sb.WriteString("TOOL CATALOG:\n")
	if len(tools) == 0 {
		sb.WriteString("(no tools available)\n")
	}
	for _, t := range tools {
		fmt.Fprintf(&sb, "%s: %s\n", t.Name(), string(t.ParametersSchema()))
	}
	sb.WriteString("\n")

	sb.WriteString("ACTIONS:\n")
	sb.WriteString(`- tool_call: {"tool":"<name>","params":{...}}` + "\n")
	sb.WriteString(`- multi_tool_call: {"tool_calls":[{"tool":"<name>","params":{...}}, ...]}` + "\n")
	sb.WriteString("- plan: a free-text plan string; no side effect\n")
	sb.WriteString(`- finish: {"final":"<answer>"} — terminal` + "\n")
	sb.WriteString("- retry: re-issue the prior tool call identified by the action_input\n\n")

	if opts.EmitPublicStatus {
		sb.WriteString("STATUS FIELDS: set status_title/status_details/next_step_hint/progress_pct to keep an observer informed of your progress.\n\n")
	}

	sb.WriteString("HISTORY:\n")
	sb.WriteString(renderHistory(st.Turns, opts))
	sb.WriteString("\n")

	sb.WriteString("Reply with the JSON object described above. JSON only.\n")
	return sb.String()
}

// HistoryContext renders the condensed turn history exactly as Build would
// embed it, for callers outside this package (the reasoning engines) that
// want the same context without the rest of the user message scaffolding.
func HistoryContext(st *state.AgentState, opts Options) string {
	return renderHistory(st.Turns, opts)
}

// renderHistory emits the most recent MaxRecentTurns turns in full detail
// and condenses everything older into one-line summaries, per spec.md
// §4.9's history condensation policy.
func renderHistory(turns []state.Turn, opts Options) string {
	if len(turns) == 0 {
		return "(no turns yet)\n"
	}

	recentFrom := len(turns) - opts.MaxRecentTurns
	if !opts.EnableHistorySummarization || recentFrom < 0 {
		recentFrom = 0
	}

	var sb strings.Builder
	for i, t := range turns {
		if i < recentFrom {
			sb.WriteString(summarizeTurn(t))
			continue
		}
		sb.WriteString(detailTurn(t, opts.MaxToolOutputSize))
	}
	return sb.String()
}

func summarizeTurn(t state.Turn) string {
	action := "?"
	thoughts := ""
	if t.LlmMessage != nil {
		action = string(t.LlmMessage.Action)
		thoughts = truncate(t.LlmMessage.Thoughts, 100)
	}

	names, results := toolNamesAndResults(t)
	return fmt.Sprintf("SUMMARY: LLM: %s - %s | TOOL(s): %s | RESULT(s): %s\n", action, thoughts, names, results)
}

func toolNamesAndResults(t state.Turn) (names string, results string) {
	all := t.ToolResults
	if t.ToolResult != nil {
		all = append(all, *t.ToolResult)
	}
	if len(all) == 0 {
		return "(none)", "0/0 success"
	}
	nameList := make([]string, len(all))
	success := 0
	for i, r := range all {
		nameList[i] = r.ToolName
		if r.Success {
			success++
		}
	}
	return strings.Join(nameList, ","), fmt.Sprintf("%d/%d success", success, len(all))
}

func detailTurn(t state.Turn, maxOutputSize int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Turn %d:\n", t.Index)
	if t.LlmMessage != nil {
		fmt.Fprintf(&sb, "  LLM: action=%s thoughts=%q\n", t.LlmMessage.Action, t.LlmMessage.Thoughts)
	}
	if t.ToolCall != nil {
		fmt.Fprintf(&sb, "  TOOL_CALL: %s params=%s\n", t.ToolCall.ToolName, t.ToolCall.Params)
	}
	if t.ToolResult != nil {
		fmt.Fprintf(&sb, "  TOOL_RESULT: %s\n", detailResult(*t.ToolResult, maxOutputSize))
	}
	for _, tc := range t.ToolCalls {
		fmt.Fprintf(&sb, "  TOOL_CALL: %s params=%s\n", tc.ToolName, tc.Params)
	}
	for _, tr := range t.ToolResults {
		fmt.Fprintf(&sb, "  TOOL_RESULT: %s\n", detailResult(tr, maxOutputSize))
	}
	return sb.String()
}

func detailResult(r state.ToolResult, maxOutputSize int) string {
	prefix := ""
	if r.LoopDetected {
		prefix = "[LOOP DETECTED: this exact call has failed repeatedly with the same parameters — change your approach] "
	}
	if r.Error != nil {
		return fmt.Sprintf("%s%s FAILED kind=%s message=%s", prefix, r.ToolName, r.Error.Kind, r.Error.Message)
	}
	out, _ := json.Marshal(r.Output)
	text := string(out)
	if maxOutputSize > 0 && len(text) > maxOutputSize {
		text = fmt.Sprintf(`{"truncated":true,"original_size":%d,"preview":%q}`, len(text), truncate(text, maxOutputSize))
	}
	return fmt.Sprintf("%s%s success=%v output=%s", prefix, r.ToolName, r.Success, text)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
