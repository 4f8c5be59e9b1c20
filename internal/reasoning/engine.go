// Package reasoning defines the shared contract for the pluggable
// pre-action deliberation engines (C9): Chain-of-Thought, Tree-of-Thoughts,
// and Hybrid. The scheduler calls at most one engine per turn; the choice
// is fixed for the life of a run by config.ReasoningType.
package reasoning

import (
	"context"
	"time"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
)

// Result is what every engine returns, regardless of which artifact (chain
// or tree) it produced internally.
type Result struct {
	Success         bool
	Conclusion      string
	Confidence      float64
	Metadata        map[string]any
	Chain           *state.ReasoningChain
	Tree            *state.ReasoningTree
	Err             *ids.Error
	ExecutionTimeMS int64
}

// Engine is the contract shared by cot.Engine, tot.Engine, and hybrid.Engine.
type Engine interface {
	Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) Result
}

// Communicator is the subset of llm.Communicator a reasoning engine needs —
// a single-shot JSON completion. Kept as a narrow interface so the
// sub-packages don't depend on llm.Communicator's full surface (only
// CompleteJSON is used), and so tests can stub it without a fake Client.
type Communicator interface {
	CompleteJSON(ctx context.Context, messages []llm.Message, v any) *ids.Error
}

// Elapsed is a small helper shared by the three engines to stamp
// ExecutionTimeMS without each one re-deriving it from time.Since.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
