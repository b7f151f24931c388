package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails validates capability calls before they run.
type Guardrails struct {
	allowlist     map[string]bool // empty allows every resolvable capability
	jsonValidator *JSONValidator
}

// NewGuardrails creates guardrails with an empty allowlist.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		allowlist:     make(map[string]bool),
		jsonValidator: NewJSONValidator(),
	}
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// ValidateToolCall checks the allowlist and validates args against the tool schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, schema []byte) error {
	if call.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(g.allowlist) > 0 && !g.allowlist[call.Name] {
		return fmt.Errorf("tool %s is not in allowlist", call.Name)
	}
	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return g.jsonValidator.Validate(args, schema)
}

// JSONValidator handles JSON schema validation. Compiled schemas are not
// cached; capability schemas are small.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return nil
}
