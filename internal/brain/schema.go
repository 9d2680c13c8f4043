package brain

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateInput checks raw against schema (a compiled JSON Schema document),
// supplementing spec.md's informal "JSON-schema input" tool contract with
// real validation before dispatch. Grounded on goadesign-goa-ai's
// registry/service.go validatePayloadJSONAgainstSchema, same
// compile-then-validate shape.
func validateInput(schema json.RawMessage, raw json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("brain: unmarshal tool schema: %w", err)
	}
	var inputDoc any
	if err := json.Unmarshal(raw, &inputDoc); err != nil {
		return fmt.Errorf("brain: unmarshal tool input: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("brain: add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("brain: compile tool schema: %w", err)
	}
	if err := compiled.Validate(inputDoc); err != nil {
		return fmt.Errorf("brain: input validation failed: %w", err)
	}
	return nil
}
