// Package hybrid implements the Hybrid reasoning engine (spec.md §4.6.3):
// run Chain-of-Thought for structured systematic analysis, then seed
// Tree-of-Thoughts with the CoT conclusion for creative expansion.
package hybrid

import (
	"context"
	"fmt"
	"time"

	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/tool"
)

// ctEngine and ttEngine are the narrow interfaces hybrid needs from cot.Engine
// and tot.Engine, named locally to avoid a direct package dependency cycle
// concern and to keep this package easy to test with stand-ins.
type ctEngine interface {
	Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result
}

type ttEngine interface {
	Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result
}

// Engine composes a Chain-of-Thought pass followed by a Tree-of-Thoughts
// pass seeded with the CoT conclusion.
type Engine struct {
	cot ctEngine
	tot ttEngine
}

// New creates a Hybrid engine from an already-constructed cot.Engine and
// tot.Engine (both satisfy reasoning.Engine, hence ctEngine/ttEngine here).
func New(cotEngine ctEngine, totEngine ttEngine) *Engine {
	return &Engine{cot: cotEngine, tot: totEngine}
}

// Reason runs CoT first; if it produced a conclusion, that conclusion is
// appended to the historyContext ToT receives, so every child-generation
// prompt of the tree sees the chain's output (the root thought itself is
// still the goal).
func (e *Engine) Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result {
	start := time.Now()

	cotResult := e.cot.Reason(ctx, goal, historyContext, tools)

	seededContext := historyContext
	if cotResult.Chain != nil && cotResult.Chain.FinalConclusion != "" {
		seededContext = fmt.Sprintf("%s\n\nCHAIN-OF-THOUGHT CONCLUSION: %s", historyContext, cotResult.Chain.FinalConclusion)
	}

	totResult := e.tot.Reason(ctx, goal, seededContext, tools)

	return reasoning.Result{
		Success:         totResult.Success,
		Conclusion:      totResult.Conclusion,
		Confidence:      totResult.Confidence,
		Chain:           cotResult.Chain,
		Tree:            totResult.Tree,
		Err:             totResult.Err,
		ExecutionTimeMS: reasoning.Elapsed(start),
	}
}
