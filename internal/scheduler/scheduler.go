// Package scheduler implements the turn scheduler (C11): the single
// iteration state machine that orchestrates a run from goal to terminal
// output, wiring together every other CORE component.
package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/omegarun/agentcore/internal/config"
	"github.com/omegarun/agentcore/internal/dispatch"
	"github.com/omegarun/agentcore/internal/events"
	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/loopdetect"
	"github.com/omegarun/agentcore/internal/message"
	"github.com/omegarun/agentcore/internal/metrics"
	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
)

// RunResult is the Scheduler's public outcome, per spec.md §4.1.
type RunResult struct {
	Succeeded   bool
	FinalOutput string
	Error       *ids.Error
	TotalTurns  int
	State       *state.AgentState
}

// Scheduler owns the long-lived collaborators shared across runs: the
// state store, the LM communicator, the loop detector, the event bus, the
// metrics collector, and (optionally) one reasoning engine. A fresh
// per-run Dispatcher is built in Run from the per-run tool catalog.
type Scheduler struct {
	Store        state.Store
	BaseRegistry *tool.Registry
	Communicator *llm.Communicator
	Detector     *loopdetect.Detector
	Bus          *events.Bus
	Metrics      *metrics.Collector
	Reasoner     reasoning.Engine
	Cfg          *config.Config
}

// New creates a Scheduler. Reasoner may be nil (cfg.ReasoningType == None).
func New(store state.Store, baseRegistry *tool.Registry, comm *llm.Communicator, detector *loopdetect.Detector, bus *events.Bus, mtr *metrics.Collector, reasoner reasoning.Engine, cfg *config.Config) *Scheduler {
	return &Scheduler{
		Store: store, BaseRegistry: baseRegistry, Communicator: comm, Detector: detector,
		Bus: bus, Metrics: mtr, Reasoner: reasoner, Cfg: cfg,
	}
}

// Run drives one (agent_id, goal) session through the turn loop until a
// terminal action or a budget ceiling, per spec.md §4.1.
func (s *Scheduler) Run(ctx context.Context, agentID, goal string, extraTools []tool.Tool, additional []state.Message) RunResult {
	registry := s.BaseRegistry.WithExtra(extraTools...)
	toolList := registry.List()
	dispatcher := dispatch.New(registry, s.Detector, s.Cfg.ToolTimeout, s.Cfg.MaxToolOutputSize)

	if s.Cfg.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.TotalTimeout)
		defer cancel()
	}

	st, err := s.Store.Load(ctx, agentID)
	if err != nil {
		return RunResult{Error: ids.Newf(ids.ErrStatePersistError, "load agent %s: %v", agentID, err)}
	}
	if st == nil {
		st = state.NewAgentState(agentID, goal, additional)
	} else if st.Goal != goal {
		return RunResult{Error: ids.New(ids.ErrGoalMismatch, "existing state has a different goal"), TotalTurns: len(st.Turns), State: st}
	}

	s.Bus.Publish(events.Event{Type: events.RunStarted, AgentID: agentID, Goal: goal})

	msgOpts := message.Options{
		MaxRecentTurns:             s.Cfg.MaxRecentTurns,
		EnableHistorySummarization: s.Cfg.EnableHistorySummarization,
		MaxToolOutputSize:          s.Cfg.MaxToolOutputSize,
		EmitPublicStatus:           s.Cfg.EmitPublicStatus,
	}

	for {
		if err := ctxErr(ctx); err != nil {
			s.persistBestEffort(ctx, st)
			return s.terminate(agentID, false, "", err, st)
		}

		if len(st.Turns) >= s.Cfg.MaxTurns {
			s.Bus.Publish(events.Event{Type: events.RunCompleted, AgentID: agentID, Succeeded: false, TotalTurns: len(st.Turns)})
			return RunResult{Error: ids.New(ids.ErrMaxTurnsExceeded, "turn budget exhausted"), TotalTurns: len(st.Turns), State: st}
		}

		turnIndex := len(st.Turns)
		s.Bus.Publish(events.Event{Type: events.StepStarted, AgentID: agentID, TurnIndex: turnIndex})

		conclusion := s.deliberate(ctx, st, toolList)

		msgs := message.Build(st, toolList, msgOpts)
		if conclusion != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "REASONING CONCLUSION (advisory): " + conclusion})
		}

		s.Bus.Publish(events.Event{Type: events.LlmCallStarted, AgentID: agentID, TurnIndex: turnIndex})
		callStart := time.Now()
		decision, lerr := s.Communicator.Decide(ctx, msgs, toolDefinitions(toolList), s.chunkCallback(agentID, turnIndex))
		if s.Metrics != nil {
			outcome := "success"
			if lerr != nil {
				outcome = "error"
			}
			s.Metrics.RecordLlmCall(outcome, time.Since(callStart).Seconds())
		}
		s.Bus.Publish(events.Event{Type: events.LlmCallCompleted, AgentID: agentID, TurnIndex: turnIndex, Decision: decision, Err: lerr})

		if lerr != nil {
			if isObservationLevel(lerr) {
				s.appendParseFailureTurn(st, lerr)
				if serr := s.Store.Save(ctx, st); serr != nil {
					return s.terminate(agentID, false, "", ids.Newf(ids.ErrStatePersistError, "%v", serr), st)
				}
				s.Bus.Publish(events.Event{Type: events.StepCompleted, AgentID: agentID, TurnIndex: turnIndex, Continue: true})
				continue
			}
			s.persistBestEffort(ctx, st)
			return s.terminate(agentID, false, "", lerr, st)
		}

		cont, result := s.applyDecision(ctx, agentID, st, registry, dispatcher, decision, turnIndex)
		if serr := s.Store.Save(ctx, st); serr != nil {
			return s.terminate(agentID, false, "", ids.Newf(ids.ErrStatePersistError, "%v", serr), st)
		}
		if !cont {
			return result
		}

		s.Bus.Publish(events.Event{
			Type: events.StepCompleted, AgentID: agentID, TurnIndex: turnIndex, Continue: true,
			ExecutedTool: executedToolOf(st.Turns[turnIndex]),
			StatusTitle:  decision.StatusTitle, StatusDetails: decision.StatusDetails,
			NextStepHint: decision.NextStepHint, ProgressPct: decision.ProgressPct,
		})
	}
}

// chunkCallback builds the StreamCallback passed into Decide. When streaming
// is disabled it returns nil, which makes Decide take the non-streaming
// Call path; otherwise each non-empty chunk is republished as a
// LlmChunkReceived event (spec.md §4.7, §4.10, §5's per-chunk suspension
// point).
func (s *Scheduler) chunkCallback(agentID string, turnIndex int) llm.StreamCallback {
	if !s.Cfg.EnableStreaming {
		return nil
	}
	return func(chunk string) {
		if chunk == "" {
			return
		}
		s.Bus.Publish(events.Event{Type: events.LlmChunkReceived, AgentID: agentID, TurnIndex: turnIndex, Chunk: chunk})
	}
}

// deliberate runs the configured reasoning engine (if any) and attaches its
// artifact to st for observability, returning a conclusion string to
// inject into the prompt only when the engine reports success — per the
// non-blocking-skip-injection resolution of spec.md §9's open question.
func (s *Scheduler) deliberate(ctx context.Context, st *state.AgentState, toolList []tool.Tool) string {
	if s.Reasoner == nil {
		return ""
	}
	historyCtx := message.HistoryContext(st, message.Options{
		MaxRecentTurns: s.Cfg.MaxRecentTurns, EnableHistorySummarization: s.Cfg.EnableHistorySummarization, MaxToolOutputSize: s.Cfg.MaxToolOutputSize,
	})
	start := time.Now()
	result := s.Reasoner.Reason(ctx, st.Goal, historyCtx, toolList)
	if s.Metrics != nil {
		s.Metrics.RecordReasoning(time.Since(start).Seconds(), result.Confidence)
	}
	if result.Chain != nil {
		st.CurrentReasoningChain = result.Chain
	}
	if result.Tree != nil {
		st.CurrentReasoningTree = result.Tree
	}
	if !result.Success {
		if result.Err != nil {
			log.Printf("[Scheduler] reasoning engine reported failure, skipping injection: %v", result.Err)
		}
		return ""
	}
	return result.Conclusion
}

// applyDecision dispatches on decision.Action (spec.md §4.1 step 7),
// mutating st in place. It returns cont=false with a final RunResult only
// when the action is terminal (finish); a malformed action_input or an
// unknown action becomes a schema-error turn and the loop continues.
func (s *Scheduler) applyDecision(ctx context.Context, agentID string, st *state.AgentState, registry *tool.Registry, dispatcher *dispatch.Dispatcher, decision *state.LlmDecision, turnIndex int) (bool, RunResult) {
	switch decision.Action {
	case state.ActionFinish:
		var fin state.FinishInput
		_ = json.Unmarshal(decision.ActionInput, &fin)
		st.AppendTurn(state.Turn{LlmMessage: decision, CreatedUTC: time.Now().UTC()})
		s.Detector.Reset(agentID)
		s.Bus.Publish(events.Event{Type: events.RunCompleted, AgentID: agentID, Succeeded: true, TotalTurns: len(st.Turns)})
		return false, RunResult{Succeeded: true, FinalOutput: fin.Final, TotalTurns: len(st.Turns), State: st}

	case state.ActionPlan:
		st.AppendTurn(state.Turn{LlmMessage: decision, CreatedUTC: time.Now().UTC()})
		return true, RunResult{}

	case state.ActionToolCall:
		var input state.ToolCallInput
		if err := json.Unmarshal(decision.ActionInput, &input); err != nil {
			return s.schemaErrorTurn(st, decision, err)
		}
		call := state.ToolCall{ID: ids.NewToolCallID(), ToolName: input.Tool, Params: input.Params, TurnIndex: turnIndex}
		result := s.dispatchOne(ctx, agentID, dispatcher, call, turnIndex)
		st.AppendTurn(state.Turn{LlmMessage: decision, ToolCall: &call, ToolResult: &result, CreatedUTC: time.Now().UTC()})
		return true, RunResult{}

	case state.ActionMultiToolCall:
		var multi state.MultiToolCallInput
		if err := json.Unmarshal(decision.ActionInput, &multi); err != nil || len(multi.ToolCalls) == 0 {
			return s.schemaErrorTurn(st, decision, err)
		}
		calls := make([]state.ToolCall, len(multi.ToolCalls))
		for i, tc := range multi.ToolCalls {
			calls[i] = state.ToolCall{ID: ids.NewToolCallID(), ToolName: tc.Tool, Params: tc.Params, TurnIndex: turnIndex}
		}
		results := s.dispatchMany(ctx, agentID, dispatcher, calls, turnIndex)
		st.AppendTurn(state.Turn{LlmMessage: decision, ToolCalls: calls, ToolResults: results, CreatedUTC: time.Now().UTC()})
		return true, RunResult{}

	case state.ActionRetry:
		var retry state.RetryInput
		_ = json.Unmarshal(decision.ActionInput, &retry)
		prior := findPriorCall(st, retry.ToolCallID)
		if prior == nil {
			st.AppendTurn(state.Turn{LlmMessage: decision, CreatedUTC: time.Now().UTC()})
			return true, RunResult{}
		}
		retried := state.ToolCall{ID: ids.NewToolCallID(), ToolName: prior.ToolName, Params: prior.Params, TurnIndex: turnIndex}
		result := s.dispatchOne(ctx, agentID, dispatcher, retried, turnIndex)
		st.AppendTurn(state.Turn{LlmMessage: decision, ToolCall: &retried, ToolResult: &result, CreatedUTC: time.Now().UTC()})
		return true, RunResult{}

	default:
		return s.schemaErrorTurn(st, decision, nil)
	}
}

func (s *Scheduler) dispatchOne(ctx context.Context, agentID string, dispatcher *dispatch.Dispatcher, call state.ToolCall, turnIndex int) state.ToolResult {
	s.Bus.Publish(events.Event{Type: events.ToolCallStarted, AgentID: agentID, TurnIndex: turnIndex, ToolName: call.ToolName})
	start := time.Now()
	result := dispatcher.Dispatch(ctx, agentID, call)
	duration := time.Since(start)
	s.recordToolMetrics(result, duration)
	s.Bus.Publish(events.Event{Type: events.ToolCallCompleted, AgentID: agentID, TurnIndex: turnIndex, ToolName: call.ToolName, Success: result.Success, Duration: duration})
	return result
}

func (s *Scheduler) dispatchMany(ctx context.Context, agentID string, dispatcher *dispatch.Dispatcher, calls []state.ToolCall, turnIndex int) []state.ToolResult {
	for _, call := range calls {
		s.Bus.Publish(events.Event{Type: events.ToolCallStarted, AgentID: agentID, TurnIndex: turnIndex, ToolName: call.ToolName})
	}
	start := time.Now()
	results := dispatcher.DispatchMany(ctx, agentID, calls)
	for _, result := range results {
		s.recordToolMetrics(result, time.Since(start))
		s.Bus.Publish(events.Event{Type: events.ToolCallCompleted, AgentID: agentID, TurnIndex: turnIndex, ToolName: result.ToolName, Success: result.Success})
	}
	return results
}

func (s *Scheduler) recordToolMetrics(result state.ToolResult, duration time.Duration) {
	if s.Metrics == nil {
		return
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	s.Metrics.RecordToolCall(result.ToolName, outcome, duration.Seconds())
	if result.LoopDetected {
		s.Metrics.RecordLoopDetected()
	}
	if result.Error != nil && result.Error.Kind == ids.ErrValidationError {
		s.Metrics.RecordValidationFailure()
	}
}

// schemaErrorTurn handles a decision whose action_input didn't match its
// declared action (spec.md §4.7: "handled identically to parse error").
func (s *Scheduler) schemaErrorTurn(st *state.AgentState, decision *state.LlmDecision, cause error) (bool, RunResult) {
	msg := "malformed action_input"
	if cause != nil {
		msg = cause.Error()
	}
	st.AppendTurn(state.Turn{
		LlmMessage: decision,
		ToolResult: &state.ToolResult{ToolName: "_schema_error", Success: false, StartedUTC: time.Now().UTC(),
			Error: &state.ToolResultError{Kind: ids.ErrLlmSchemaError, Message: msg}},
		CreatedUTC: time.Now().UTC(),
	})
	return true, RunResult{}
}

// appendParseFailureTurn implements spec.md §4.1 step 6: a pseudo-turn
// whose observation is {error:"invalid JSON", raw_excerpt}.
func (s *Scheduler) appendParseFailureTurn(st *state.AgentState, lerr *ids.Error) {
	st.AppendTurn(state.Turn{
		ToolResult: &state.ToolResult{
			ToolName: "_parse_error", Success: false, StartedUTC: time.Now().UTC(),
			Error: &state.ToolResultError{Kind: lerr.Kind, Message: "invalid JSON", Field: lerr.Field},
		},
		CreatedUTC: time.Now().UTC(),
	})
}

// findPriorCall resolves a retry action's target: the ToolCall matching id
// if given, else the most recent ToolCall in the state, per spec.md §9's
// open-question resolution.
func findPriorCall(st *state.AgentState, id string) *state.ToolCall {
	for i := len(st.Turns) - 1; i >= 0; i-- {
		t := st.Turns[i]
		if t.ToolCall != nil && (id == "" || string(t.ToolCall.ID) == id) {
			return t.ToolCall
		}
		for j := len(t.ToolCalls) - 1; j >= 0; j-- {
			if id == "" || string(t.ToolCalls[j].ID) == id {
				return &t.ToolCalls[j]
			}
		}
	}
	return nil
}

// isObservationLevel reports whether lerr should become a self-correcting
// pseudo-turn (spec.md §4.1 step 6) rather than terminate the run.
func isObservationLevel(lerr *ids.Error) bool {
	switch lerr.Kind {
	case ids.ErrLlmParseError, ids.ErrLlmSchemaError:
		return true
	default:
		return false
	}
}

func (s *Scheduler) terminate(agentID string, succeeded bool, output string, err *ids.Error, st *state.AgentState) RunResult {
	s.Bus.Publish(events.Event{Type: events.RunCompleted, AgentID: agentID, Succeeded: succeeded, TotalTurns: len(st.Turns), Err: err})
	return RunResult{Succeeded: succeeded, FinalOutput: output, Error: err, TotalTurns: len(st.Turns), State: st}
}

func (s *Scheduler) persistBestEffort(ctx context.Context, st *state.AgentState) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.Save(saveCtx, st); err != nil {
		log.Printf("[Scheduler] best-effort persist on cancellation failed: %v", err)
	}
}

func ctxErr(ctx context.Context) *ids.Error {
	if ctx.Err() == nil {
		return nil
	}
	return ids.New(ids.ErrCancelled, ctx.Err().Error())
}

func executedToolOf(t state.Turn) string {
	if t.ToolCall != nil {
		return t.ToolCall.ToolName
	}
	if len(t.ToolCalls) > 0 {
		return t.ToolCalls[0].ToolName
	}
	return ""
}

func toolDefinitions(tools []tool.Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()}
	}
	return defs
}
