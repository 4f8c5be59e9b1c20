// Package tool defines the Tool contract and registry (C3). A tool exposes
// a stable name, a description for prompt assembly, a JSON-Schema
// parameters description, and an invocation entry point.
package tool

import (
	"context"
	"encoding/json"
	"log"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is the unified interface every callable implements.
type Tool interface {
	// Name is matched verbatim against LM output; no provider prefixes.
	Name() string

	// Description is injected into prompt assembly.
	Description() string

	// ParametersSchema returns the effective JSON-Schema for this tool's
	// params, already resolved per the override/generated/fallback rule
	// (see ResolveSchema).
	ParametersSchema() json.RawMessage

	// Invoke executes the tool. ctx carries cancellation; implementations
	// doing I/O must honor ctx.Done().
	Invoke(ctx context.Context, params json.RawMessage) (any, error)
}

// SchemaParam describes one parameter for the Schema helper.
type SchemaParam struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number", "object", "array"
	Description string
	Required    bool
	Enum        []string
}

// Schema builds a JSON-Schema object from a flat parameter list, letting
// tools avoid hand-writing schema JSON for the common case.
func Schema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

// ResolveSchema implements spec.md §4.3's override rule: an authored
// override wins over the generated schema, unless it fails to compile as
// JSON Schema, in which case the generated schema is used and a warning is
// logged — never a hard failure.
func ResolveSchema(generated, override json.RawMessage) json.RawMessage {
	if len(override) == 0 {
		return generated
	}
	if err := compiles(override); err != nil {
		log.Printf("[Tool] WARNING: override schema invalid (%v), falling back to generated schema", err)
		return generated
	}
	return override
}

func compiles(schema json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://override.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return err
	}
	_, err := c.Compile(resourceURL)
	return err
}
