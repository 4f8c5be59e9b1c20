// Package cot implements the Chain-of-Thought reasoning engine (spec.md
// §4.6.1): four ordered LM sub-steps — Analysis, Planning, Decision,
// Evaluation. Each step is one node in a fixed-arity core.Flow, the same
// Prep-Exec-Post lifecycle the teacher's workflow engine uses elsewhere,
// generalized from the teacher's single-step self-looping
// ChainOfThoughtNode into four chained nodes.
package cot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/omegarun/agentcore/internal/core"
	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
)

// Config controls the optional validator pass. The chain always runs the
// four fixed steps; their number is not configurable.
type Config struct {
	EnableValidation bool
	MinConfidence    float64
}

// Engine runs the four-step chain over a Communicator.
type Engine struct {
	comm reasoning.Communicator
	cfg  Config
}

// New creates a CoT engine wrapping comm.
func New(comm reasoning.Communicator, cfg Config) *Engine {
	return &Engine{comm: comm, cfg: cfg}
}

var stepOrder = []state.StepType{
	state.StepAnalysis,
	state.StepPlanning,
	state.StepDecision,
	state.StepEvaluation,
}

// stepResponse is the JSON shape every sub-step prompt requires, per
// spec.md §4.6.1.
type stepResponse struct {
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
	Insights   []string `json:"insights"`
	Conclusion string   `json:"conclusion"`
}

// validatorResponse is the optional fifth call's shape.
type validatorResponse struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error"`
}

// chainRunState is the State type parameter shared across the four nodes of
// one Reason call's Flow.
type chainRunState struct {
	goal           string
	historyContext string
	chain          *state.ReasoningChain
	evaluation     stepResponse
	aborted        bool
	err            *ids.Error
}

// stepInput is the PrepResult a stepNode hands itself: everything Exec
// needs without touching the shared State pointer (BaseNode.Exec only sees
// the prep item, not the state).
type stepInput struct {
	stepType       state.StepType
	goal           string
	historyContext string
	priorSteps     []state.ReasoningStep
}

// stepNode runs one Chain-of-Thought sub-step. One instance is single-use:
// built fresh per Reason call, never shared across runs.
type stepNode struct {
	stepType  state.StepType
	comm      reasoning.Communicator
	startedAt time.Time
	lastErr   error
}

func (n *stepNode) Prep(run *chainRunState) []stepInput {
	if run.aborted {
		return nil
	}
	n.startedAt = time.Now()
	return []stepInput{{
		stepType:       n.stepType,
		goal:           run.goal,
		historyContext: run.historyContext,
		priorSteps:     run.chain.Steps,
	}}
}

func (n *stepNode) Exec(ctx context.Context, in stepInput) (stepResponse, error) {
	var resp stepResponse
	if err := n.comm.CompleteJSON(ctx, promptFor(in.stepType, in.goal, in.historyContext, in.priorSteps), &resp); err != nil {
		n.lastErr = err
		return stepResponse{}, err
	}
	return resp, nil
}

func (n *stepNode) ExecFallback(error) stepResponse { return stepResponse{} }

func (n *stepNode) Post(run *chainRunState, prepRes []stepInput, execResults ...stepResponse) core.Action {
	if len(prepRes) == 0 {
		return core.ActionFailure
	}
	if n.lastErr != nil {
		log.Printf("[Reasoning] CoT step %s failed to parse: %v", n.stepType, n.lastErr)
		run.aborted = true
		run.err = ids.New(ids.ErrReasoningParseError, fmt.Sprintf("step %s: %v", n.stepType, n.lastErr))
		return core.ActionFailure
	}

	resp := execResults[0]
	step := state.ReasoningStep{
		StepNumber:      len(run.chain.Steps) + 1,
		Reasoning:       resp.Reasoning,
		StepType:        n.stepType,
		Confidence:      clamp01(resp.Confidence),
		Insights:        resp.Insights,
		ExecutionTimeMS: reasoning.Elapsed(n.startedAt),
		CreatedUTC:      time.Now().UTC(),
	}
	run.chain.Steps = append(run.chain.Steps, step)
	if n.stepType == state.StepEvaluation {
		run.evaluation = resp
	}
	return core.ActionContinue
}

// buildChainFlow wires the four stepNodes into a linear core.Flow,
// ActionContinue chaining to the next step and ActionFailure (an
// unparseable step) short-circuiting the rest.
func buildChainFlow(comm reasoning.Communicator) core.Workflow[chainRunState] {
	nodes := make([]*core.Node[chainRunState, stepInput, stepResponse], len(stepOrder))
	for i, st := range stepOrder {
		nodes[i] = core.NewNode[chainRunState, stepInput, stepResponse](&stepNode{stepType: st, comm: comm}, 0)
	}
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].AddSuccessor(nodes[i+1], core.ActionContinue)
	}
	return core.NewFlow[chainRunState](nodes[0])
}

// Reason runs the four sub-steps in order, aborting early (with whatever
// steps already completed) if one fails to parse.
func (e *Engine) Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result {
	start := time.Now()
	run := &chainRunState{
		goal:           goal,
		historyContext: historyContext,
		chain:          &state.ReasoningChain{Goal: goal, CreatedUTC: start.UTC()},
	}

	buildChainFlow(e.comm).Run(ctx, run)

	if run.aborted {
		return reasoning.Result{
			Success:         false,
			Chain:           run.chain,
			Err:             run.err,
			ExecutionTimeMS: reasoning.Elapsed(start),
		}
	}

	chain := run.chain
	finalConfidence := meanConfidence(chain.Steps)
	chain.FinalConclusion = run.evaluation.Conclusion
	chain.FinalConfidence = finalConfidence
	completed := time.Now().UTC()
	chain.CompletedUTC = &completed
	chain.TotalExecutionTimeMS = reasoning.Elapsed(start)

	success := true
	var rerr *ids.Error
	if e.cfg.EnableValidation {
		var v validatorResponse
		if verr := e.comm.CompleteJSON(ctx, validatorPrompt(goal, chain.FinalConclusion), &v); verr != nil {
			log.Printf("[Reasoning] CoT validator call failed, treating as advisory pass: %v", verr)
		} else if !v.IsValid && finalConfidence < e.cfg.MinConfidence {
			success = false
			rerr = ids.New(ids.ErrReasoningLowConf, v.Error)
		}
	}

	return reasoning.Result{
		Success:         success,
		Conclusion:      chain.FinalConclusion,
		Confidence:      finalConfidence,
		Chain:           chain,
		Err:             rerr,
		ExecutionTimeMS: chain.TotalExecutionTimeMS,
	}
}

func meanConfidence(steps []state.ReasoningStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range steps {
		sum += s.Confidence
	}
	return sum / float64(len(steps))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func promptFor(stepType state.StepType, goal, historyContext string, priorSteps []state.ReasoningStep) []llm.Message {
	var sb string
	for _, s := range priorSteps {
		sb += fmt.Sprintf("[%s] %s (confidence=%.2f)\n", s.StepType, s.Reasoning, s.Confidence)
	}
	instruction := stepInstruction(stepType)
	content := fmt.Sprintf(
		"GOAL: %s\n\nCONTEXT:\n%s\n\nPRIOR STEPS:\n%s\n%s\n\nRespond with JSON only: {\"reasoning\":string,\"confidence\":number 0-1,\"insights\":[string],\"conclusion\":string (optional)}.",
		goal, historyContext, sb, instruction,
	)
	return []llm.Message{{Role: llm.RoleUser, Content: content}}
}

func stepInstruction(stepType state.StepType) string {
	switch stepType {
	case state.StepAnalysis:
		return "STEP: Analysis — break down the goal and current context into its key facts and constraints."
	case state.StepPlanning:
		return "STEP: Planning — propose a sequence of actions that could achieve the goal."
	case state.StepDecision:
		return "STEP: Decision — choose the single best next action from the plan and justify it."
	case state.StepEvaluation:
		return "STEP: Evaluation — critique the chosen decision and state a final conclusion in the \"conclusion\" field."
	default:
		return ""
	}
}

func validatorPrompt(goal, conclusion string) []llm.Message {
	content := fmt.Sprintf(
		"GOAL: %s\nCONCLUSION: %s\n\nIs this conclusion sound and actionable? Respond with JSON only: {\"is_valid\":bool,\"error\":string (if invalid)}.",
		goal, conclusion,
	)
	return []llm.Message{{Role: llm.RoleUser, Content: content}}
}
