package tot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/omegarun/agentcore/internal/config"
	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/stretchr/testify/require"
)

// terminatingComm alternates generate/evaluate responses so the engine terminates
// quickly: every generate call proposes one child, every evaluate call
// scores 0.9 and marks it terminal so the search stops after one round.
type terminatingComm struct {
	calls int
}

func (c *terminatingComm) CompleteJSON(ctx context.Context, messages []llm.Message, v any) *ids.Error {
	c.calls++
	if c.calls%2 == 1 {
		return unmarshalInto(`{"children":[{"thought":"try approach A","thought_type":"Hypothesis","estimated_score":0.5}]}`, v)
	}
	return unmarshalInto(`{"score":0.9,"terminal":true}`, v)
}

func unmarshalInto(raw string, v any) *ids.Error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return ids.New(ids.ErrReasoningParseError, err.Error())
	}
	return nil
}

func TestReasonTerminatesOnTerminalNode(t *testing.T) {
	engine := New(&terminatingComm{}, Config{MaxDepth: 5, MaxNodes: 40, Strategy: config.StrategyBestFirst})

	result := engine.Reason(context.Background(), "find a plan", "", nil)

	require.True(t, result.Success)
	require.Equal(t, "try approach A", result.Conclusion)
	require.NotEmpty(t, result.Tree.BestPath)
	require.LessOrEqual(t, result.Tree.NodeCount, result.Tree.MaxNodesCap)
	require.LessOrEqual(t, result.Tree.CurrentMaxDepth, result.Tree.MaxDepthCap)
}

// exhaustingComm never produces a terminal node, forcing the engine to hit
// the max-nodes bound.
type exhaustingComm struct{}

func (exhaustingComm) CompleteJSON(ctx context.Context, messages []llm.Message, v any) *ids.Error {
	if _, ok := v.(*generateResponse); ok {
		return unmarshalInto(`{"children":[{"thought":"a"},{"thought":"b"},{"thought":"c"}]}`, v)
	}
	return unmarshalInto(`{"score":0.4,"terminal":false}`, v)
}

func TestReasonRespectsMaxNodesBound(t *testing.T) {
	engine := New(exhaustingComm{}, Config{MaxDepth: 3, MaxNodes: 7, Strategy: config.StrategyBreadthFirst})

	result := engine.Reason(context.Background(), "goal", "", nil)

	require.LessOrEqual(t, result.Tree.NodeCount, 7)
	require.LessOrEqual(t, result.Tree.CurrentMaxDepth, 3)
}

func TestBestPathNodesAreEvaluatedOrTerminal(t *testing.T) {
	tree := &state.ReasoningTree{Nodes: map[ids.NodeID]*state.ThoughtNode{}}
	root := ids.NewNodeID()
	leaf := ids.NewNodeID()
	score := 0.8
	tree.Nodes[root] = &state.ThoughtNode{ID: root, State: state.ThoughtEvaluated}
	tree.Nodes[leaf] = &state.ThoughtNode{ID: leaf, ParentID: root, State: state.ThoughtTerminal, Score: &score}
	tree.RootID = root

	path := computeBestPath(tree)
	require.Equal(t, []ids.NodeID{root, leaf}, path)
	for _, id := range path {
		n := tree.Nodes[id]
		require.Contains(t, []state.ThoughtState{state.ThoughtEvaluated, state.ThoughtTerminal}, n.State)
	}
}

func TestPruneNodeCascadesToDescendants(t *testing.T) {
	tree := &state.ReasoningTree{Nodes: map[ids.NodeID]*state.ThoughtNode{}}
	root, child, grandchild := ids.NewNodeID(), ids.NewNodeID(), ids.NewNodeID()
	tree.Nodes[root] = &state.ThoughtNode{ID: root, Children: []ids.NodeID{child}}
	tree.Nodes[child] = &state.ThoughtNode{ID: child, Children: []ids.NodeID{grandchild}}
	tree.Nodes[grandchild] = &state.ThoughtNode{ID: grandchild}

	PruneNode(tree, root)

	require.Equal(t, state.ThoughtPruned, tree.Nodes[root].State)
	require.Equal(t, state.ThoughtPruned, tree.Nodes[child].State)
	require.Equal(t, state.ThoughtPruned, tree.Nodes[grandchild].State)
}
