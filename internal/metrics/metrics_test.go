package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordLlmCallAppearsInSnapshot(t *testing.T) {
	c := New()
	c.RecordLlmCall("success", 0.5)
	c.RecordLlmCall("success", 0.3)
	c.RecordLlmCall("error", 1.2)

	snap := c.Snapshot()
	require.Equal(t, float64(2), snap.LlmCallsTotal["success"])
	require.Equal(t, float64(1), snap.LlmCallsTotal["error"])
}

func TestRecordToolCallKeyedByToolAndOutcome(t *testing.T) {
	c := New()
	c.RecordToolCall("search", "success", 0.1)
	c.RecordToolCall("search", "failure", 0.2)

	snap := c.Snapshot()
	require.Equal(t, float64(1), snap.ToolCallsTotal["search:success"])
	require.Equal(t, float64(1), snap.ToolCallsTotal["search:failure"])
}

func TestRecordLoopDetectedAndValidationFailureCounters(t *testing.T) {
	c := New()
	c.RecordLoopDetected()
	c.RecordLoopDetected()
	c.RecordValidationFailure()

	snap := c.Snapshot()
	require.Equal(t, float64(2), snap.LoopDetectedTotal)
	require.Equal(t, float64(1), snap.ValidationFailureTotal)
}

func TestIndependentCollectorsDoNotShareState(t *testing.T) {
	a := New()
	b := New()
	a.RecordLlmCall("success", 0.1)

	require.Equal(t, float64(1), a.Snapshot().LlmCallsTotal["success"])
	require.Equal(t, float64(0), b.Snapshot().LlmCallsTotal["success"])
}
