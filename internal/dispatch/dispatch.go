// Package dispatch implements the tool dispatcher (C10): validates params,
// invokes under a timeout, truncates oversized output, records the outcome
// for loop detection, then consults the detector with that outcome included
// so a streak-completing failure is flagged on its own result.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/loopdetect"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/tool"
	"github.com/omegarun/agentcore/internal/validate"
)

// Dispatcher executes ToolCalls against a Registry, enforcing validation,
// timeouts, output truncation, and loop-detector bookkeeping.
type Dispatcher struct {
	Registry      *tool.Registry
	Detector      *loopdetect.Detector
	ToolTimeout   time.Duration
	MaxOutputSize int
}

// New creates a Dispatcher.
func New(registry *tool.Registry, detector *loopdetect.Detector, toolTimeout time.Duration, maxOutputSize int) *Dispatcher {
	return &Dispatcher{Registry: registry, Detector: detector, ToolTimeout: toolTimeout, MaxOutputSize: maxOutputSize}
}

// Dispatch runs the single-call path of spec.md §4.8 steps 1-5.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string, call state.ToolCall) state.ToolResult {
	start := time.Now().UTC()

	t, ok := d.Registry.Get(call.ToolName)
	if !ok {
		log.Printf("[Dispatcher] tool %q not found for agent %s", call.ToolName, agentID)
		return d.finish(agentID, call, state.ToolResult{
			ID: call.ID, ToolName: call.ToolName, Success: false, StartedUTC: start,
			Error: &state.ToolResultError{Kind: ids.ErrToolNotFound, Message: tool.ErrNotFound(call.ToolName).Error()},
		})
	}

	if verr := validate.Params(t.ParametersSchema(), call.Params); verr != nil {
		return d.finish(agentID, call, state.ToolResult{
			ID: call.ID, ToolName: call.ToolName, Success: false, StartedUTC: start,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      &state.ToolResultError{Kind: verr.Kind, Message: verr.Message, Field: verr.Field},
		})
	}

	invokeCtx := ctx
	cancel := func() {}
	if d.ToolTimeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, d.ToolTimeout)
	}
	defer cancel()

	output, err := t.Invoke(invokeCtx, call.Params)
	duration := time.Since(start)

	var result state.ToolResult
	if err != nil {
		kind := ids.ErrToolException
		if invokeCtx.Err() == context.DeadlineExceeded {
			kind = ids.ErrTimeout
		} else if ctx.Err() != nil {
			kind = ids.ErrCancelled
		}
		result = state.ToolResult{
			ID: call.ID, ToolName: call.ToolName, Success: false, StartedUTC: start, DurationMS: duration.Milliseconds(),
			Error: &state.ToolResultError{Kind: kind, Message: err.Error()},
		}
	} else {
		result = state.ToolResult{
			ID: call.ID, ToolName: call.ToolName, Success: true, Output: output, StartedUTC: start, DurationMS: duration.Milliseconds(),
		}
		d.truncate(&result)
	}

	return d.finish(agentID, call, result)
}

// finish records this call's outcome first, then consults the detector with
// that outcome already included in the history (spec.md §4.1 step 8 / §4.8
// step 2: "after any tool failure, ask C5 whether this call has failed ...
// >= threshold times"). Recording before consulting ensures the Kth
// consecutive identical failure is itself flagged, not the (K+1)th.
func (d *Dispatcher) finish(agentID string, call state.ToolCall, result state.ToolResult) state.ToolResult {
	d.Detector.Record(agentID, call.ToolName, call.Params, result.Success)
	result.LoopDetected = d.Detector.DetectRepeatedFailures(agentID, call.ToolName, call.Params)
	if result.LoopDetected {
		log.Printf("[Dispatcher] loop detector flagged repeated failures for %s/%s (agent %s)", call.ToolName, call.ID, agentID)
	}
	return result
}

// truncate implements spec.md §4.8 step 4: cap the serialized output at
// MaxOutputSize bytes, replacing it with a marker object when exceeded.
func (d *Dispatcher) truncate(result *state.ToolResult) {
	if d.MaxOutputSize <= 0 {
		return
	}
	raw, err := json.Marshal(result.Output)
	if err != nil {
		return
	}
	if len(raw) <= d.MaxOutputSize {
		return
	}
	preview := raw[:d.MaxOutputSize]
	result.Truncated = true
	result.Output = map[string]any{
		"truncated":     true,
		"original_size": len(raw),
		"preview":       fmt.Sprintf("%s...", preview),
	}
}

// DispatchMany runs the multi-tool-call path of spec.md §4.8: all calls
// execute concurrently, one failure does not cancel its siblings, and the
// output vector preserves the input order.
func (d *Dispatcher) DispatchMany(ctx context.Context, agentID string, calls []state.ToolCall) []state.ToolResult {
	results := make([]state.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call state.ToolCall) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, agentID, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
