// Package tot implements the Tree-of-Thoughts reasoning engine (spec.md
// §4.6.2). Unlike cot, this engine has no teacher analogue; it is built
// fresh in the same Prep-generate/evaluate-Post shape the teacher's
// internal/core node lifecycle favors, but as a plain iterative loop —
// the tree's branching factor and termination conditions are dynamic in a
// way the fixed-arity BaseNode[Prep,Exec,Post] generic doesn't fit.
package tot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/omegarun/agentcore/internal/config"
	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
)

const defaultFanout = 3

// Config controls tree bounds and exploration policy.
type Config struct {
	MaxDepth int
	MaxNodes int
	Strategy config.ExplorationStrategy
	BeamWidth int
}

// Engine runs the bounded tree search over a Communicator.
type Engine struct {
	comm reasoning.Communicator
	cfg  Config
}

// New creates a ToT engine wrapping comm.
func New(comm reasoning.Communicator, cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 40
	}
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = 3
	}
	return &Engine{comm: comm, cfg: cfg}
}

type childCandidate struct {
	Thought        string  `json:"thought"`
	ThoughtType    string  `json:"thought_type"`
	EstimatedScore float64 `json:"estimated_score"`
}

type generateResponse struct {
	Children []childCandidate `json:"children"`
}

type evaluateResponse struct {
	Score    float64 `json:"score"`
	Terminal bool    `json:"terminal"`
}

// frontierEntry tracks a node id alongside its insertion sequence number,
// for stable tie-breaks across all four strategies.
type frontierEntry struct {
	id       ids.NodeID
	sequence int
}

// Reason grows a ReasoningTree rooted at a Hypothesis node for goal, until
// a termination condition from spec.md §4.6.2 step 6 is met.
func (e *Engine) Reason(ctx context.Context, goal, historyContext string, tools []tool.Tool) reasoning.Result {
	start := time.Now()

	rootID := ids.NewNodeID()
	tree := &state.ReasoningTree{
		Goal:                goal,
		RootID:              rootID,
		Nodes:               map[ids.NodeID]*state.ThoughtNode{rootID: {ID: rootID, Depth: 0, Thought: goal, Type: state.ThoughtHypothesis, State: state.ThoughtEvaluated}},
		MaxDepthCap:         e.cfg.MaxDepth,
		MaxNodesCap:         e.cfg.MaxNodes,
		NodeCount:           1,
		ExplorationStrategy: string(e.cfg.Strategy),
	}

	var frontier []frontierEntry
	sequence := 0
	frontier = append(frontier, frontierEntry{id: rootID, sequence: sequence})

	terminalSeen := false
	for len(frontier) > 0 && tree.NodeCount < tree.MaxNodesCap && tree.CurrentMaxDepth < tree.MaxDepthCap {
		if ctx.Err() != nil {
			break
		}

		var parentID ids.NodeID
		parentID, frontier = pickNext(frontier, e.cfg.Strategy)
		parent := tree.Nodes[parentID]

		var gen generateResponse
		if err := e.comm.CompleteJSON(ctx, generatePrompt(goal, historyContext, tree, parent), &gen); err != nil {
			continue // this frontier node yields nothing; move on
		}

		fanout := defaultFanout
		if e.cfg.Strategy == config.StrategyBeamSearch {
			fanout = e.cfg.BeamWidth
		}
		if len(gen.Children) > fanout {
			gen.Children = gen.Children[:fanout]
		}

		var newChildren []ids.NodeID
		for _, c := range gen.Children {
			if tree.NodeCount >= tree.MaxNodesCap {
				break
			}
			childID := ids.NewNodeID()
			node := &state.ThoughtNode{
				ID:       childID,
				ParentID: parentID,
				Depth:    parent.Depth + 1,
				Thought:  c.Thought,
				Type:     thoughtTypeOf(c.ThoughtType),
				State:    state.ThoughtGenerated,
			}
			tree.Nodes[childID] = node
			parent.Children = append(parent.Children, childID)
			tree.NodeCount++
			if node.Depth > tree.CurrentMaxDepth {
				tree.CurrentMaxDepth = node.Depth
			}
			newChildren = append(newChildren, childID)
		}
		// parent keeps its prior Evaluated/Terminal state rather than moving
		// to Expanded: spec.md §8 requires every node on best_path to be in
		// {Evaluated, Terminal}, and an ancestor on that path has necessarily
		// been expanded to reach its descendant.

		for _, childID := range newChildren {
			child := tree.Nodes[childID]
			var eval evaluateResponse
			if err := e.comm.CompleteJSON(ctx, evaluatePrompt(goal, child), &eval); err != nil {
				continue
			}
			score := clamp01(eval.Score)
			child.Score = &score
			if eval.Terminal {
				child.State = state.ThoughtTerminal
				terminalSeen = true
			} else {
				child.State = state.ThoughtEvaluated
			}
			sequence++
			frontier = append(frontier, frontierEntry{id: childID, sequence: sequence})
		}

		if e.cfg.Strategy == config.StrategyBestFirst || e.cfg.Strategy == config.StrategyBeamSearch {
			sortByScoreDesc(frontier, tree)
		}
		if e.cfg.Strategy == config.StrategyBeamSearch && len(frontier) > e.cfg.BeamWidth {
			frontier = frontier[:e.cfg.BeamWidth]
		}

		if terminalSeen {
			break
		}
	}

	bestPath := computeBestPath(tree)
	tree.BestPath = bestPath

	conclusion := ""
	confidence := 0.0
	if len(bestPath) > 0 {
		last := tree.Nodes[bestPath[len(bestPath)-1]]
		conclusion = last.Thought
		if last.Score != nil {
			confidence = *last.Score
		}
	}

	return reasoning.Result{
		Success:         len(bestPath) > 0,
		Conclusion:      conclusion,
		Confidence:      confidence,
		Tree:            tree,
		ExecutionTimeMS: reasoning.Elapsed(start),
	}
}

// pickNext removes and returns the next node per strategy, tie-breaking by
// insertion sequence (stable), per spec.md §4.6.2 step 1.
func pickNext(frontier []frontierEntry, strategy config.ExplorationStrategy) (ids.NodeID, []frontierEntry) {
	switch strategy {
	case config.StrategyDepthFirst:
		last := frontier[len(frontier)-1]
		return last.id, frontier[:len(frontier)-1]
	case config.StrategyBreadthFirst:
		first := frontier[0]
		return first.id, frontier[1:]
	default: // BestFirst and BeamSearch both pick the current highest score
		first := frontier[0]
		return first.id, frontier[1:]
	}
}

// sortByScoreDesc reorders the frontier by the tree's node scores,
// descending, stable on insertion sequence. BestFirst and BeamSearch call
// this after each round of re-enqueuing so pickNext's "first" is the
// highest-scoring node.
func sortByScoreDesc(frontier []frontierEntry, tree *state.ReasoningTree) {
	sort.SliceStable(frontier, func(i, j int) bool {
		si, sj := scoreOf(tree, frontier[i].id), scoreOf(tree, frontier[j].id)
		if si != sj {
			return si > sj
		}
		return frontier[i].sequence < frontier[j].sequence
	})
}

func scoreOf(tree *state.ReasoningTree, id ids.NodeID) float64 {
	n := tree.Nodes[id]
	if n == nil || n.Score == nil {
		return 0
	}
	return *n.Score
}

func thoughtTypeOf(s string) state.ThoughtType {
	switch state.ThoughtType(s) {
	case state.ThoughtHypothesis, state.ThoughtAnalysis, state.ThoughtAlternative, state.ThoughtEvaluation, state.ThoughtConclusion:
		return state.ThoughtType(s)
	default:
		return state.ThoughtAnalysis
	}
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

// computeBestPath implements spec.md §4.6.2's post-termination selection:
// the highest-scoring Terminal node if any, else the highest-scoring
// Evaluated leaf, walking parent pointers back to root and reversing.
func computeBestPath(tree *state.ReasoningTree) []ids.NodeID {
	var best *state.ThoughtNode
	for _, n := range tree.Nodes {
		if n.State != state.ThoughtTerminal {
			continue
		}
		if best == nil || scoreOf(tree, n.ID) > scoreOf(tree, best.ID) {
			best = n
		}
	}
	if best == nil {
		for _, n := range tree.Nodes {
			if n.State != state.ThoughtEvaluated || len(n.Children) > 0 {
				continue
			}
			if best == nil || scoreOf(tree, n.ID) > scoreOf(tree, best.ID) {
				best = n
			}
		}
	}
	if best == nil {
		return nil
	}

	var path []ids.NodeID
	cur := best
	for {
		path = append(path, cur.ID)
		if cur.ParentID == "" {
			break
		}
		cur = tree.Nodes[cur.ParentID]
		if cur == nil {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func generatePrompt(goal, historyContext string, tree *state.ReasoningTree, parent *state.ThoughtNode) []llm.Message {
	content := fmt.Sprintf(
		"GOAL: %s\n\nCONTEXT:\n%s\n\nCURRENT THOUGHT (depth %d): %s\n\nPropose up to %d distinct next-step thoughts that extend this line of reasoning. Respond with JSON only: {\"children\":[{\"thought\":string,\"thought_type\":\"Hypothesis\"|\"Analysis\"|\"Alternative\"|\"Evaluation\"|\"Conclusion\",\"estimated_score\":number 0-1}]}.",
		goal, historyContext, parent.Depth, parent.Thought, defaultFanout,
	)
	return []llm.Message{{Role: llm.RoleUser, Content: content}}
}

func evaluatePrompt(goal string, node *state.ThoughtNode) []llm.Message {
	content := fmt.Sprintf(
		"GOAL: %s\n\nCANDIDATE THOUGHT (depth %d): %s\n\nScore how well this thought advances the goal and whether it is a complete, acceptable final answer. Respond with JSON only: {\"score\":number 0-1,\"terminal\":bool}.",
		goal, node.Depth, node.Thought,
	)
	return []llm.Message{{Role: llm.RoleUser, Content: content}}
}

// PruneNode transitions id and all its descendants to Pruned and removes
// them from further consideration. Pruned nodes remain in the tree for
// auditability (spec.md §4.6.2).
func PruneNode(tree *state.ReasoningTree, id ids.NodeID) {
	n, ok := tree.Nodes[id]
	if !ok {
		return
	}
	n.State = state.ThoughtPruned
	for _, childID := range n.Children {
		PruneNode(tree, childID)
	}
}
