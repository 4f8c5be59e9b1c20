package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/omegarun/agentcore/internal/config"
	"github.com/omegarun/agentcore/internal/events"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/loopdetect"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) next() string {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return c.responses[idx]
}

func (c *scriptedClient) Call(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	return llm.Response{Content: c.next()}, nil
}

func (c *scriptedClient) CallStream(ctx context.Context, messages []llm.Message, onChunk llm.StreamCallback) (llm.Response, error) {
	return c.Call(ctx, messages)
}

func (c *scriptedClient) CallWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	return c.Call(ctx, messages)
}

func (c *scriptedClient) Capabilities() llm.Capabilities { return llm.Capabilities{} }

type weatherTool struct{}

func (weatherTool) Name() string        { return "get_weather" }
func (weatherTool) Description() string { return "reports current weather for a city" }
func (weatherTool) ParametersSchema() json.RawMessage {
	return tool.Schema(tool.SchemaParam{Name: "city", Type: "string", Required: true})
}
func (weatherTool) Invoke(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"temp_c": 22}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	cfg.UseFunctionCalling = false
	return cfg
}

func newScheduler(client llm.Client, cfg *config.Config) *Scheduler {
	comm := llm.NewCommunicator(client, llm.CommunicatorConfig{MaxRetries: cfg.MaxRetries, RetryBaseDelay: cfg.RetryBaseDelay, RetryBackoffMultiplier: cfg.RetryBackoffMultiplier})
	return New(state.NewMemoryStore(), tool.NewRegistry(), comm, loopdetect.New(cfg.MaxToolCallHistory, cfg.ConsecutiveFailureThreshold), events.NewBus(), nil, nil, cfg)
}

func TestRunSingleToolSuccess(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"thoughts":"calling weather","action":"tool_call","action_input":{"tool":"get_weather","params":{"city":"Paris"}}}`,
		`{"thoughts":"done","action":"finish","action_input":{"final":"It is 22C in Paris."}}`,
	}}
	sched := newScheduler(client, testConfig())

	result := sched.Run(context.Background(), "agent-s1", "Get weather in Paris", []tool.Tool{weatherTool{}}, nil)

	require.True(t, result.Succeeded)
	require.Equal(t, 2, result.TotalTurns)
	require.Contains(t, result.FinalOutput, "22")
}

func TestRunValidationFailureThenRecovers(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"action":"tool_call","action_input":{"tool":"get_weather","params":{"city":123}}}`,
		`{"action":"tool_call","action_input":{"tool":"get_weather","params":{"city":"Paris"}}}`,
		`{"action":"finish","action_input":{"final":"22C"}}`,
	}}
	sched := newScheduler(client, testConfig())

	result := sched.Run(context.Background(), "agent-s2", "weather", []tool.Tool{weatherTool{}}, nil)

	require.True(t, result.Succeeded)
	require.False(t, result.State.Turns[0].ToolResult.Success)
	require.Equal(t, "ValidationError", string(result.State.Turns[0].ToolResult.Error.Kind))
}

func TestRunBudgetExceeded(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"action":"plan","action_input":"thinking"}`}}
	cfg := testConfig()
	cfg.MaxTurns = 3
	sched := newScheduler(client, cfg)

	result := sched.Run(context.Background(), "agent-s7", "never finishes", nil, nil)

	require.False(t, result.Succeeded)
	require.Equal(t, "MaxTurnsExceeded", string(result.Error.Kind))
	require.Equal(t, 3, result.TotalTurns)
	require.Len(t, result.State.Turns, 3)
}

func TestRunParseFailureRecoversOnNextTurn(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"```json\nnot actually valid json{{{\n```",
		`{"action":"finish","action_input":{"final":"recovered"}}`,
	}}
	sched := newScheduler(client, testConfig())

	result := sched.Run(context.Background(), "agent-s5", "goal", nil, nil)

	require.True(t, result.Succeeded)
	require.Equal(t, "recovered", result.FinalOutput)
	require.Equal(t, 2, result.TotalTurns)
	require.Nil(t, result.State.Turns[0].LlmMessage)
	require.Equal(t, "invalid JSON", result.State.Turns[0].ToolResult.Error.Message)
}

func TestRunGoalMismatchFailsWithoutRunning(t *testing.T) {
	cfg := testConfig()
	store := state.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), state.NewAgentState("agent-mismatch", "original goal", nil)))
	comm := llm.NewCommunicator(&scriptedClient{responses: []string{`{"action":"finish","action_input":{"final":"x"}}`}}, llm.CommunicatorConfig{})
	sched := New(store, tool.NewRegistry(), comm, loopdetect.New(10, 3), events.NewBus(), nil, nil, cfg)

	result := sched.Run(context.Background(), "agent-mismatch", "a different goal", nil, nil)

	require.False(t, result.Succeeded)
	require.Equal(t, "GoalMismatch", string(result.Error.Kind))
}

func TestRunMultiToolCallPreservesOrder(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"action":"multi_tool_call","action_input":{"tool_calls":[{"tool":"get_weather","params":{"city":"Paris"}},{"tool":"get_weather","params":{"city":"Rome"}}]}}`,
		`{"action":"finish","action_input":{"final":"done"}}`,
	}}
	sched := newScheduler(client, testConfig())

	result := sched.Run(context.Background(), "agent-s4", "multi", []tool.Tool{weatherTool{}}, nil)

	require.True(t, result.Succeeded)
	turn := result.State.Turns[0]
	require.Len(t, turn.ToolResults, 2)
	require.True(t, turn.ToolResults[0].Success)
	require.True(t, turn.ToolResults[1].Success)
}
