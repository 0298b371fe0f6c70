package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/flowforge-io/core/pkg/contracts"
)

const ruleSetSchemaURL = "https://flowforge.schemas.local/workflow-rules.schema.json"

// ruleSetSchema is the formal contract a generator response must satisfy
// before any semantic check runs.
const ruleSetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "trigger", "actions"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "trigger": {
            "type": "object",
            "required": ["source"],
            "properties": {
              "source": {"type": "string", "minLength": 1},
              "filter": {"type": "object"}
            }
          },
          "condition": {"type": "object"},
          "actions": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {"type": "string", "minLength": 1},
                "payload": {"type": "object"}
              }
            }
          }
        }
      }
    },
    "summary": {"type": "string"},
    "confidence": {"type": "number"}
  }
}`

// schemaValidator checks generator responses: formal structure first,
// then semantic rules the schema language cannot express.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator() (*schemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(ruleSetSchemaURL, bytes.NewReader([]byte(ruleSetSchema))); err != nil {
		return nil, fmt.Errorf("orchestrator: load rule-set schema: %w", err)
	}
	compiled, err := c.Compile(ruleSetSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: compile rule-set schema: %w", err)
	}
	return &schemaValidator{schema: compiled}, nil
}

// validate checks the rule set and returns the outcome as data.
func (v *schemaValidator) validate(rs *contracts.WorkflowRuleSet) contracts.SchemaValidation {
	result := contracts.SchemaValidation{Valid: true}

	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	// Round-trip through JSON so the schema sees what actually arrived.
	raw, err := json.Marshal(rs)
	if err != nil {
		fail("encode rule set: %v", err)
		return result
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		fail("decode rule set: %v", err)
		return result
	}
	if err := v.schema.Validate(doc); err != nil {
		fail("schema: %v", err)
	}

	if rs.Confidence < 0 || rs.Confidence > 1 {
		fail("confidence %v outside [0,1]", rs.Confidence)
	}

	names := make(map[string]bool, len(rs.Rules))
	for _, rule := range rs.Rules {
		if names[rule.Name] {
			fail("duplicate rule name %q", rule.Name)
		}
		names[rule.Name] = true

		if len(rule.Actions) == 0 {
			fail("rule %q has no actions", rule.Name)
		}
		for i, action := range rule.Actions {
			if action.Type == "" {
				fail("rule %q action %d has no type", rule.Name, i)
			}
		}
	}

	return result
}
