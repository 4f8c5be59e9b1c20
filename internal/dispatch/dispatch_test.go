package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/loopdetect"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name    string
	schema  json.RawMessage
	output  any
	err     error
	delay   time.Duration
	invoked int
}

func (t *fakeTool) Name() string                     { return t.name }
func (t *fakeTool) Description() string              { return "fake" }
func (t *fakeTool) ParametersSchema() json.RawMessage { return t.schema }
func (t *fakeTool) Invoke(ctx context.Context, params json.RawMessage) (any, error) {
	t.invoked++
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.output, t.err
}

func newDispatcher(tools ...tool.Tool) (*Dispatcher, *tool.Registry) {
	reg := tool.NewRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return New(reg, loopdetect.New(20, 3), time.Second, 100), reg
}

func TestDispatchSuccess(t *testing.T) {
	ft := &fakeTool{name: "echo", schema: tool.Schema(tool.SchemaParam{Name: "text", Type: "string"}), output: "hi"}
	d, _ := newDispatcher(ft)

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "echo", Params: json.RawMessage(`{"text":"hi"}`)})

	require.True(t, result.Success)
	require.Equal(t, "hi", result.Output)
	require.Equal(t, 1, ft.invoked)
}

func TestDispatchToolNotFound(t *testing.T) {
	d, _ := newDispatcher()

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "missing", Params: json.RawMessage(`{}`)})

	require.False(t, result.Success)
	require.Equal(t, ids.ErrToolNotFound, result.Error.Kind)
}

func TestDispatchValidationFailureSkipsInvoke(t *testing.T) {
	ft := &fakeTool{name: "echo", schema: tool.Schema(tool.SchemaParam{Name: "text", Type: "string", Required: true})}
	d, _ := newDispatcher(ft)

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "echo", Params: json.RawMessage(`{}`)})

	require.False(t, result.Success)
	require.Equal(t, ids.ErrValidationError, result.Error.Kind)
	require.Equal(t, 0, ft.invoked)
}

func TestDispatchTimeoutConvertsToTimeoutKind(t *testing.T) {
	ft := &fakeTool{name: "slow", schema: json.RawMessage(`{}`), delay: 50 * time.Millisecond}
	d, _ := newDispatcher(ft)
	d.ToolTimeout = 5 * time.Millisecond

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "slow", Params: json.RawMessage(`{}`)})

	require.False(t, result.Success)
	require.Equal(t, ids.ErrTimeout, result.Error.Kind)
}

func TestDispatchToolExceptionSurfacesAsToolException(t *testing.T) {
	ft := &fakeTool{name: "broken", schema: json.RawMessage(`{}`), err: errors.New("boom")}
	d, _ := newDispatcher(ft)

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "broken", Params: json.RawMessage(`{}`)})

	require.False(t, result.Success)
	require.Equal(t, ids.ErrToolException, result.Error.Kind)
}

func TestDispatchTruncatesOversizedOutput(t *testing.T) {
	big := make(map[string]string)
	for i := 0; i < 50; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "some repeated filler content here"
	}
	ft := &fakeTool{name: "big", schema: json.RawMessage(`{}`), output: big}
	d, _ := newDispatcher(ft)
	d.MaxOutputSize = 10

	result := d.Dispatch(context.Background(), "agent1", state.ToolCall{ID: "c1", ToolName: "big", Params: json.RawMessage(`{}`)})

	require.True(t, result.Success)
	require.True(t, result.Truncated)
	asMap, ok := result.Output.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, asMap["truncated"])
}

func TestDispatchLoopDetectedAnnotatesWithoutBlocking(t *testing.T) {
	ft := &fakeTool{name: "broken", schema: json.RawMessage(`{}`), err: errors.New("boom")}
	d, _ := newDispatcher(ft)
	call := state.ToolCall{ID: "c1", ToolName: "broken", Params: json.RawMessage(`{"x":1}`)}

	// threshold is 3: the 3rd consecutive identical failure must itself carry
	// LoopDetected, not the 4th (the detector consults its history only
	// after recording the just-failed call's own outcome).
	first := d.Dispatch(context.Background(), "agent1", call)
	second := d.Dispatch(context.Background(), "agent1", call)
	third := d.Dispatch(context.Background(), "agent1", call)

	require.False(t, first.LoopDetected)
	require.False(t, second.LoopDetected)
	require.False(t, third.Success)
	require.True(t, third.LoopDetected)
	require.Equal(t, 3, ft.invoked)
}

func TestDispatchManyPreservesOrderAndRunsConcurrently(t *testing.T) {
	a := &fakeTool{name: "a", schema: json.RawMessage(`{}`), output: "A", delay: 20 * time.Millisecond}
	b := &fakeTool{name: "b", schema: json.RawMessage(`{}`), output: "B", delay: 20 * time.Millisecond}
	c := &fakeTool{name: "c", schema: json.RawMessage(`{}`), output: "C", delay: 20 * time.Millisecond}
	d, _ := newDispatcher(a, b, c)

	calls := []state.ToolCall{
		{ID: "1", ToolName: "c", Params: json.RawMessage(`{}`)},
		{ID: "2", ToolName: "a", Params: json.RawMessage(`{}`)},
		{ID: "3", ToolName: "b", Params: json.RawMessage(`{}`)},
	}

	started := time.Now()
	results := d.DispatchMany(context.Background(), "agent1", calls)
	elapsed := time.Since(started)

	require.Len(t, results, 3)
	require.Equal(t, "c", results[0].ToolName)
	require.Equal(t, "a", results[1].ToolName)
	require.Equal(t, "b", results[2].ToolName)
	require.Less(t, elapsed, 55*time.Millisecond)
}
