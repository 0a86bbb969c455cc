package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/stoewer/go-strcase"
)

// Schema reflects a JSON schema from the argument struct T. Property keys
// are snake_cased and the schema is inlined (no $ref indirection) so every
// provider accepts it as a tool parameter object.
func Schema[T any]() map[string]any {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		KeyNamer:       strcase.SnakeCase,
	}
	var v T
	schema := r.Reflect(&v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		// A reflected schema of a concrete struct always marshals; an
		// empty object keeps the tool callable if it somehow does not.
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}
