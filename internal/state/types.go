// Package state defines the durable AgentState/Turn data model (C2's
// contract types) and the Store interface. Adapters (MemoryStore here,
// filestore.Store) provide the concrete persistence backends.
package state

import (
	"encoding/json"
	"time"

	"github.com/omegarun/agentcore/internal/ids"
)

// Message is a framework-level chat message, mirroring llm.Message but kept
// free of a dependency on the llm package so the data model has no vendor
// concerns attached to it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Action is the set of actions an LlmDecision may carry.
type Action string

const (
	ActionToolCall      Action = "tool_call"
	ActionMultiToolCall  Action = "multi_tool_call"
	ActionPlan          Action = "plan"
	ActionFinish        Action = "finish"
	ActionRetry         Action = "retry"
)

// LlmDecision is the parsed shape of one LM turn.
type LlmDecision struct {
	Thoughts string          `json:"thoughts"`
	Action   Action          `json:"action"`
	// ActionInput is kept as raw JSON; callers (scheduler) decode the shape
	// that matches Action via the helpers below.
	ActionInput json.RawMessage `json:"action_input,omitempty"`

	StatusTitle   string  `json:"status_title,omitempty"`
	StatusDetails string  `json:"status_details,omitempty"`
	NextStepHint  string  `json:"next_step_hint,omitempty"`
	ProgressPct   *int    `json:"progress_pct,omitempty"`
}

// ToolCallInput is ActionInput decoded for Action == ActionToolCall.
type ToolCallInput struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// MultiToolCallInput is ActionInput decoded for Action == ActionMultiToolCall.
type MultiToolCallInput struct {
	ToolCalls []ToolCallInput `json:"tool_calls"`
}

// FinishInput is ActionInput decoded for Action == ActionFinish.
type FinishInput struct {
	Final string `json:"final"`
}

// RetryInput is ActionInput decoded for Action == ActionRetry. The retry
// target is implementation-defined (spec.md §3); this runtime identifies
// the prior call to retry by ToolCallID, defaulting to "most recent" when
// empty (see DESIGN.md open-question resolution).
type RetryInput struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation request.
type ToolCall struct {
	ID        ids.ToolCallID  `json:"id"`
	ToolName  string          `json:"tool_name"`
	Params    json.RawMessage `json:"params"`
	TurnIndex int             `json:"turn_index"`
}

// ToolResultError mirrors ids.Error's public-facing fields for JSON
// round-tripping inside a persisted ToolResult.
type ToolResultError struct {
	Kind    ids.ErrorKind `json:"kind"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
}

// ToolResult is the observation produced by executing a ToolCall.
type ToolResult struct {
	ID         ids.ToolCallID   `json:"id"`
	ToolName   string           `json:"tool_name"`
	Success    bool             `json:"success"`
	Output     any              `json:"output,omitempty"`
	Error      *ToolResultError `json:"error,omitempty"`
	StartedUTC time.Time        `json:"started_utc"`
	DurationMS int64            `json:"duration_ms"`
	Truncated  bool             `json:"truncated"`

	// LoopDetected is set by the dispatcher (C10) when the loop detector
	// (C5) reports that this exact (tool, canonical(params)) combination
	// has failed consecutively at least consecutive_failure_threshold
	// times. It never blocks execution; it only biases the next prompt
	// (spec.md §4.1 step 8, §4.8 step 2).
	LoopDetected bool `json:"loop_detected,omitempty"`
}

// Turn is one iteration of the scheduler loop.
type Turn struct {
	Index int       `json:"index"`
	ID    ids.TurnID `json:"id"`

	LlmMessage *LlmDecision `json:"llm_message,omitempty"`

	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	CreatedUTC time.Time `json:"created_utc"`
}

// StepType classifies one ReasoningStep in a CoT chain.
type StepType string

const (
	StepAnalysis   StepType = "Analysis"
	StepPlanning   StepType = "Planning"
	StepDecision   StepType = "Decision"
	StepEvaluation StepType = "Evaluation"
)

// ReasoningStep is one sub-step of a ReasoningChain.
type ReasoningStep struct {
	StepNumber      int      `json:"step_number"`
	Reasoning       string   `json:"reasoning"`
	StepType        StepType `json:"step_type"`
	Confidence      float64  `json:"confidence"`
	Insights        []string `json:"insights,omitempty"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	CreatedUTC      time.Time `json:"created_utc"`
}

// ReasoningChain is the Chain-of-Thought artifact.
type ReasoningChain struct {
	Goal                string          `json:"goal"`
	Steps               []ReasoningStep `json:"steps"`
	FinalConclusion     string          `json:"final_conclusion"`
	FinalConfidence     float64         `json:"final_confidence"`
	CreatedUTC          time.Time       `json:"created_utc"`
	CompletedUTC        *time.Time      `json:"completed_utc,omitempty"`
	TotalExecutionTimeMS int64          `json:"total_execution_time_ms"`
}

// ThoughtType classifies one ThoughtNode in a ReasoningTree.
type ThoughtType string

const (
	ThoughtHypothesis ThoughtType = "Hypothesis"
	ThoughtAnalysis   ThoughtType = "Analysis"
	ThoughtAlternative ThoughtType = "Alternative"
	ThoughtEvaluation ThoughtType = "Evaluation"
	ThoughtConclusion ThoughtType = "Conclusion"
)

// ThoughtState is the lifecycle state of a ThoughtNode.
type ThoughtState string

const (
	ThoughtGenerated ThoughtState = "Generated"
	ThoughtEvaluated ThoughtState = "Evaluated"
	ThoughtExpanded  ThoughtState = "Expanded"
	ThoughtPruned    ThoughtState = "Pruned"
	ThoughtTerminal  ThoughtState = "Terminal"
)

// ThoughtNode is one node in a ReasoningTree.
type ThoughtNode struct {
	ID       ids.NodeID   `json:"id"`
	ParentID ids.NodeID   `json:"parent_id,omitempty"`
	Depth    int          `json:"depth"`
	Thought  string       `json:"thought"`
	Type     ThoughtType  `json:"thought_type"`
	State    ThoughtState `json:"state"`
	Score    *float64     `json:"score,omitempty"`
	Children []ids.NodeID `json:"children,omitempty"`
}

// ReasoningTree is the Tree-of-Thoughts artifact.
type ReasoningTree struct {
	Goal                string                      `json:"goal"`
	RootID              ids.NodeID                  `json:"root_id"`
	Nodes               map[ids.NodeID]*ThoughtNode `json:"nodes"`
	BestPath            []ids.NodeID                `json:"best_path,omitempty"`
	MaxDepthCap         int                         `json:"max_depth_cap"`
	MaxNodesCap         int                         `json:"max_nodes_cap"`
	CurrentMaxDepth     int                         `json:"current_max_depth"`
	NodeCount           int                         `json:"node_count"`
	ExplorationStrategy string                      `json:"exploration_strategy"`
}

// AgentState is the durable record for one (agent_id, goal) session.
type AgentState struct {
	AgentID             string            `json:"agent_id"`
	Goal                string            `json:"goal"`
	AdditionalMessages  []Message         `json:"additional_messages,omitempty"`
	Turns               []Turn            `json:"turns"`
	CurrentReasoningChain *ReasoningChain `json:"current_reasoning_chain,omitempty"`
	CurrentReasoningTree  *ReasoningTree  `json:"current_reasoning_tree,omitempty"`
	ReasoningMetadata   map[string]any    `json:"reasoning_metadata,omitempty"`
	CreatedUTC          time.Time         `json:"created_utc"`
	LastUpdatedUTC      time.Time         `json:"last_updated_utc"`

	// extra preserves unknown top-level fields so round-tripping through an
	// older/newer schema version never silently drops data (spec.md §6).
	extra map[string]json.RawMessage `json:"-"`
}

// NewAgentState creates the initial state for a freshly-seen (agent_id, goal).
func NewAgentState(agentID, goal string, additional []Message) *AgentState {
	now := time.Now().UTC()
	return &AgentState{
		AgentID:            agentID,
		Goal:               goal,
		AdditionalMessages: additional,
		Turns:              []Turn{},
		ReasoningMetadata:  map[string]any{},
		CreatedUTC:         now,
		LastUpdatedUTC:     now,
	}
}

// AppendTurn appends t, enforcing the gap-free monotonic index invariant.
func (s *AgentState) AppendTurn(t Turn) {
	t.Index = len(s.Turns)
	s.Turns = append(s.Turns, t)
	s.LastUpdatedUTC = time.Now().UTC()
}
