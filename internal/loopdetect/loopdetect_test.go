package loopdetect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalHashIgnoresKeyOrder(t *testing.T) {
	a := CanonicalHash(json.RawMessage(`{"b":2,"a":1}`))
	b := CanonicalHash(json.RawMessage(`{"a":1,"b":2}`))
	require.Equal(t, a, b)
}

func TestCanonicalHashDistinguishesValues(t *testing.T) {
	a := CanonicalHash(json.RawMessage(`{"a":1}`))
	b := CanonicalHash(json.RawMessage(`{"a":2}`))
	require.NotEqual(t, a, b)
}

func TestDetectRepeatedFailuresTriggersAtThreshold(t *testing.T) {
	d := New(20, 3)
	params := json.RawMessage(`{"path":"/tmp/x"}`)

	for i := 0; i < 2; i++ {
		d.Record("agent1", "read_file", params, false)
		require.False(t, d.DetectRepeatedFailures("agent1", "read_file", params))
	}
	d.Record("agent1", "read_file", params, false)
	require.True(t, d.DetectRepeatedFailures("agent1", "read_file", params))
}

func TestDetectRepeatedFailuresResetsOnSuccessForSameCall(t *testing.T) {
	d := New(20, 2)
	params := json.RawMessage(`{"path":"/tmp/x"}`)

	d.Record("agent1", "read_file", params, false)
	d.Record("agent1", "read_file", params, true)
	d.Record("agent1", "read_file", params, false)
	require.False(t, d.DetectRepeatedFailures("agent1", "read_file", params))
}

func TestDetectRepeatedFailuresIgnoresOtherCalls(t *testing.T) {
	d := New(20, 2)
	paramsA := json.RawMessage(`{"path":"/a"}`)
	paramsB := json.RawMessage(`{"path":"/b"}`)

	d.Record("agent1", "read_file", paramsA, false)
	d.Record("agent1", "read_file", paramsB, true) // unrelated call, success
	d.Record("agent1", "read_file", paramsA, false)
	require.True(t, d.DetectRepeatedFailures("agent1", "read_file", paramsA))
}
