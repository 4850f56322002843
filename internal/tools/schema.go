package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflectSchema derives a tool parameter schema from a Go argument struct.
// The result is an inline object schema without $schema/$id noise, suitable
// for direct submission as a ToolDefinition's parameters.
func reflectSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return payload
	}
	delete(m, "$schema")
	delete(m, "$id")
	cleaned, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return cleaned
}
