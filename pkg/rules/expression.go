package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// expressionChecker compiles condition expressions without evaluating
// them. The environment exposes the trigger event and the accumulated
// step data as dynamically typed variables.
type expressionChecker struct {
	env *cel.Env
}

func newExpressionChecker() (*expressionChecker, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
		cel.Variable("data", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: build expression env: %w", err)
	}
	return &expressionChecker{env: env}, nil
}

// check reports whether the expression parses and type-checks. It must
// produce a boolean, since conditions gate rule execution.
func (e *expressionChecker) check(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return fmt.Errorf("expression yields %s, want bool", ast.OutputType())
	}
	return nil
}
