package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaOf reflects a Go struct into the map[string]any shape Schema()
// methods return. The dispatcher does not validate call arguments
// against this schema; each tool parses its own arguments.
func SchemaOf[T any]() map[string]any {
	var zero T
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	s := reflector.Reflect(&zero)
	b, err := s.MarshalJSON()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
