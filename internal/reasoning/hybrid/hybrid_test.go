package hybrid

import (
	"context"
	"testing"

	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
	"github.com/stretchr/testify/require"
)

type stubCot struct {
	result   reasoning.Result
	received string
}

func (s *stubCot) Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result {
	return s.result
}

type stubTot struct {
	result        reasoning.Result
	receivedCtx   string
}

func (s *stubTot) Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result {
	s.receivedCtx = historyContext
	return s.result
}

func TestReasonSeedsToTWithCotConclusion(t *testing.T) {
	cotEngine := &stubCot{result: reasoning.Result{
		Chain: &state.ReasoningChain{FinalConclusion: "favor option B"},
	}}
	totEngine := &stubTot{result: reasoning.Result{Success: true, Conclusion: "final answer"}}

	engine := New(cotEngine, totEngine)
	result := engine.Reason(context.Background(), "goal", "base context", nil)

	require.Contains(t, totEngine.receivedCtx, "favor option B")
	require.Equal(t, "final answer", result.Conclusion)
	require.True(t, result.Success)
	require.Equal(t, cotEngine.result.Chain, result.Chain)
}

func TestReasonWithoutCotConclusionLeavesContextUnchanged(t *testing.T) {
	cotEngine := &stubCot{result: reasoning.Result{}}
	totEngine := &stubTot{result: reasoning.Result{Success: true}}

	engine := New(cotEngine, totEngine)
	engine.Reason(context.Background(), "goal", "base context", nil)

	require.Equal(t, "base context", totEngine.receivedCtx)
}
