// Package validate shape-checks tool parameters against a JSON-Schema
// before dispatch (C4). Validation never throws up the stack: every
// failure mode is returned as a structured ids.Error.
package validate

import (
	"encoding/json"
	"sync"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledCache avoids recompiling the same schema on every dispatch; keyed
// by the schema's raw JSON text.
var compiledCache sync.Map // map[string]*jsonschema.Schema

func compile(schemaJSON json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaJSON)
	if cached, ok := compiledCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://tool-params.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil, err
	}
	compiledCache.Store(key, schema)
	return schema, nil
}

// Params validates params against schemaJSON, returning a *ids.Error with
// Kind == ErrValidationError on failure, or nil on success. An empty schema
// is treated as "no constraints" and always succeeds.
func Params(schemaJSON json.RawMessage, params json.RawMessage) *ids.Error {
	if len(schemaJSON) == 0 {
		return nil
	}

	var instance any
	if len(params) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(params, &instance); err != nil {
		return ids.New(ids.ErrValidationError, "params is not valid JSON: "+err.Error())
	}

	schema, err := compile(schemaJSON)
	if err != nil {
		return ids.New(ids.ErrValidationError, "tool schema does not compile: "+err.Error())
	}

	if err := schema.Validate(instance); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return &ids.Error{
				Kind:    ids.ErrValidationError,
				Message: verr.Error(),
				Field:   fieldFromError(verr),
			}
		}
		return ids.New(ids.ErrValidationError, err.Error())
	}
	return nil
}

// fieldFromError best-effort extracts the deepest instance location from a
// jsonschema.ValidationError for the ToolResult.error.field surface,
// walking the basic error-tree shape the library documents. It returns ""
// rather than panicking if the shape doesn't match what we expect.
func fieldFromError(verr *jsonschema.ValidationError) string {
	current := verr
	for len(current.Causes) > 0 {
		current = current.Causes[0]
	}
	if len(current.InstanceLocation) == 0 {
		return ""
	}
	field := current.InstanceLocation[0]
	for _, seg := range current.InstanceLocation[1:] {
		field += "." + seg
	}
	return field
}
