package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	schema json.RawMessage
}

func (s stubTool) Name() string                        { return s.name }
func (s stubTool) Description() string                 { return "stub tool " + s.name }
func (s stubTool) ParametersSchema() json.RawMessage    { return s.schema }
func (s stubTool) Invoke(context.Context, json.RawMessage) (any, error) { return "ok", nil }

func TestRegistryGetAndList(t *testing.T) {
	r := NewRegistry()
	r.Register(stubTool{name: "beta"})
	r.Register(stubTool{name: "alpha"})

	got, ok := r.Get("alpha")
	require.True(t, ok)
	require.Equal(t, "alpha", got.Name())

	_, ok = r.Get("missing")
	require.False(t, ok)

	names := []string{}
	for _, tl := range r.List() {
		names = append(names, tl.Name())
	}
	require.Equal(t, []string{"alpha", "beta"}, names)
}

func TestRegistryWithExtraOverridesParent(t *testing.T) {
	root := NewRegistry()
	root.Register(stubTool{name: "echo", schema: Schema()})

	view := root.WithExtra(stubTool{name: "echo", schema: Schema(SchemaParam{Name: "x", Type: "string"})})
	got, ok := view.Get("echo")
	require.True(t, ok)
	require.Contains(t, string(got.ParametersSchema()), `"x"`)

	// parent is untouched
	parentTool, _ := root.Get("echo")
	require.NotContains(t, string(parentTool.ParametersSchema()), `"x"`)
}

func TestResolveSchemaFallsBackOnInvalidOverride(t *testing.T) {
	generated := Schema(SchemaParam{Name: "q", Type: "string", Required: true})
	resolved := ResolveSchema(generated, json.RawMessage(`{"type": 123}`))
	require.Equal(t, generated, resolved)
}

func TestResolveSchemaUsesValidOverride(t *testing.T) {
	generated := Schema(SchemaParam{Name: "q", Type: "string"})
	override := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	resolved := ResolveSchema(generated, override)
	require.JSONEq(t, string(override), string(resolved))
}
