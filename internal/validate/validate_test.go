package validate

import (
	"encoding/json"
	"testing"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/stretchr/testify/require"
)

var schema = json.RawMessage(`{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"]
}`)

func TestParamsValid(t *testing.T) {
	err := Params(schema, json.RawMessage(`{"query":"hello"}`))
	require.Nil(t, err)
}

func TestParamsMissingRequired(t *testing.T) {
	err := Params(schema, json.RawMessage(`{}`))
	require.NotNil(t, err)
	require.Equal(t, ids.ErrValidationError, err.Kind)
}

func TestParamsWrongType(t *testing.T) {
	err := Params(schema, json.RawMessage(`{"query": 5}`))
	require.NotNil(t, err)
}

func TestParamsEmptySchemaAlwaysSucceeds(t *testing.T) {
	err := Params(nil, json.RawMessage(`{"anything":true}`))
	require.Nil(t, err)
}

func TestParamsNotJSON(t *testing.T) {
	err := Params(schema, json.RawMessage(`not json`))
	require.NotNil(t, err)
}
