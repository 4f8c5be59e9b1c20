package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/jsonlenient"
	"github.com/omegarun/agentcore/internal/state"
	"gopkg.in/yaml.v3"
)

// CommunicatorConfig controls retry and parsing behavior. Zero values are
// replaced with sane defaults by NewCommunicator.
type CommunicatorConfig struct {
	MaxRetries             int
	RetryBaseDelay         time.Duration
	RetryBackoffMultiplier float64
	UseFunctionCalling     bool
}

// Communicator wraps a vendor Client with retry/backoff on transport
// errors and lenient decoding of text-JSON responses into LlmDecision
// (C8). This replaces the teacher's hand-rolled time.After retry loop with
// the ecosystem's exponential-backoff-with-jitter policy object.
type Communicator struct {
	client Client
	cfg    CommunicatorConfig
}

// NewCommunicator wraps client with the given retry/parsing configuration.
func NewCommunicator(client Client, cfg CommunicatorConfig) *Communicator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryBackoffMultiplier <= 0 {
		cfg.RetryBackoffMultiplier = 2.0
	}
	return &Communicator{client: client, cfg: cfg}
}

func (c *Communicator) backoffPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBaseDelay
	b.Multiplier = c.cfg.RetryBackoffMultiplier
	b.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// callWithRetry retries op only on transport-level failure; anything else
// (including a context cancellation) is returned immediately via
// backoff.Permanent so it is not retried.
func (c *Communicator) callWithRetry(ctx context.Context, op func() (Response, error)) (Response, error) {
	var resp Response
	wrapped := func() error {
		var err error
		resp, err = op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err // retryable transport error
	}
	if err := backoff.Retry(wrapped, c.backoffPolicy(ctx)); err != nil {
		if ctx.Err() != nil {
			return Response{}, ids.New(ids.ErrCancelled, ctx.Err().Error())
		}
		return Response{}, ids.Newf(ids.ErrLlmTransportError, "%v", err)
	}
	return resp, nil
}

// Decide performs one scheduler turn's LM call and maps the result into an
// LlmDecision, using native function-calling when useFC is true and the
// vendor supports it, otherwise the text-JSON path with lenient parsing.
func (c *Communicator) Decide(ctx context.Context, messages []Message, tools []ToolDefinition, onChunk StreamCallback) (*state.LlmDecision, *ids.Error) {
	useFC := c.cfg.UseFunctionCalling && c.client.Capabilities().SupportsFunctionCalling && len(tools) > 0

	var resp Response
	var err error
	if useFC {
		resp, err = c.callWithRetry(ctx, func() (Response, error) {
			return c.client.CallWithTools(ctx, messages, tools)
		})
	} else if onChunk != nil {
		resp, err = c.callWithRetry(ctx, func() (Response, error) {
			return c.client.CallStream(ctx, messages, onChunk)
		})
	} else {
		resp, err = c.callWithRetry(ctx, func() (Response, error) {
			return c.client.Call(ctx, messages)
		})
	}
	if err != nil {
		if ierr, ok := err.(*ids.Error); ok {
			return nil, ierr
		}
		return nil, ids.Newf(ids.ErrLlmTransportError, "%v", err)
	}

	if len(resp.ToolCalls) > 0 {
		return toolCallsToDecision(resp)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, ids.New(ids.ErrLlmEmptyResponse, "empty response from LM")
	}
	return decodeTextDecision(resp.Content)
}

// toolCallsToDecision normalizes a native function-calling response into an
// LlmDecision with action=tool_call or multi_tool_call.
func toolCallsToDecision(resp Response) (*state.LlmDecision, *ids.Error) {
	calls := make([]state.ToolCallInput, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		calls[i] = state.ToolCallInput{
			Tool:   normalizeToolName(tc.Name),
			Params: tc.Arguments,
		}
	}

	decision := &state.LlmDecision{Thoughts: resp.Content}
	if len(calls) == 1 {
		decision.Action = state.ActionToolCall
		input, _ := json.Marshal(calls[0])
		decision.ActionInput = input
	} else {
		decision.Action = state.ActionMultiToolCall
		input, _ := json.Marshal(state.MultiToolCallInput{ToolCalls: calls})
		decision.ActionInput = input
	}
	return decision, nil
}

// normalizeToolName strips a "functions." vendor prefix, per spec.md §4.7.
func normalizeToolName(name string) string {
	return strings.TrimPrefix(name, "functions.")
}

// textDecision is the wire shape decoded from LM text output before it's
// normalized into state.LlmDecision.
type textDecision struct {
	Thoughts      string          `json:"thoughts"`
	Action        string          `json:"action"`
	ActionInput   json.RawMessage `json:"action_input"`
	StatusTitle   string          `json:"status_title"`
	StatusDetails string          `json:"status_details"`
	NextStepHint  string          `json:"next_step_hint"`
	ProgressPct   *int            `json:"progress_pct"`
}

func decodeTextDecision(raw string) (*state.LlmDecision, *ids.Error) {
	var td textDecision
	excerpt, err := jsonlenient.Decode(raw, &td)
	if err != nil {
		excerptLen := len(excerpt)
		if excerptLen > 200 {
			excerpt = excerpt[:200]
		}
		return nil, &ids.Error{Kind: ids.ErrLlmParseError, Message: "could not parse LM output as JSON: " + err.Error(), Field: excerpt}
	}
	if td.Action == "" {
		return nil, ids.New(ids.ErrLlmSchemaError, "missing required field 'action'")
	}

	return &state.LlmDecision{
		Thoughts:      td.Thoughts,
		Action:        state.Action(td.Action),
		ActionInput:   td.ActionInput,
		StatusTitle:   td.StatusTitle,
		StatusDetails: td.StatusDetails,
		NextStepHint:  td.NextStepHint,
		ProgressPct:   td.ProgressPct,
	}, nil
}

// CompleteJSON performs a single-shot completion and lenient-decodes the
// response into v. Used by the reasoning engines (CoT sub-steps, ToT
// generate/evaluate calls), which don't need the tool-call/action
// machinery of Decide.
func (c *Communicator) CompleteJSON(ctx context.Context, messages []Message, v any) *ids.Error {
	resp, err := c.callWithRetry(ctx, func() (Response, error) {
		return c.client.Call(ctx, messages)
	})
	if err != nil {
		if ierr, ok := err.(*ids.Error); ok {
			return ierr
		}
		return ids.Newf(ids.ErrLlmTransportError, "%v", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return ids.New(ids.ErrLlmEmptyResponse, "empty response from LM")
	}
	if _, err := jsonlenient.Decode(resp.Content, v); err != nil {
		// Second chance: some models emit YAML-ish output (unquoted keys)
		// that isn't quite JSON; try a YAML decode before giving up,
		// mirroring the teacher's two-attempt parseDecision pattern.
		if yerr := yaml.Unmarshal([]byte(jsonlenient.StripFences(resp.Content)), v); yerr == nil {
			return nil
		}
		return ids.Newf(ids.ErrReasoningParseError, "could not parse reasoning step output: %v", err)
	}
	return nil
}
