package orchestrator

import (
	"fmt"
	"strings"
)

// evaluateCondition evaluates the minimal condition language used by
// conditional dependencies: a single equality check whose left side
// dot-navigates the completed-workflow outputs context, e.g.
// "billing.plan == 'enterprise'". Any evaluation failure defaults to true
// (fail-open). This is a deliberate simplification, not a general expression
// engine; richer operators would need an explicit product decision because
// conditions gate workflow execution including compensation triggers.
func (o *Orchestrator) evaluateCondition(condition string, outputs map[string]any) bool {
	expr := strings.TrimSpace(condition)
	if expr == "" {
		return true
	}

	parts := strings.SplitN(expr, "==", 2)
	if len(parts) != 2 {
		o.logger.Warn("Unparseable condition, defaulting to true", "condition", condition)

		return true
	}

	path := strings.TrimSpace(parts[0])

	expected := strings.TrimSpace(parts[1])
	expected = strings.Trim(expected, `'"`)

	actual, ok := navigatePath(outputs, path)
	if !ok {
		o.logger.Warn("Condition path not found, defaulting to true", "condition", condition, "path", path)

		return true
	}

	return fmt.Sprint(actual) == expected
}

// navigatePath descends nested maps along a dot-separated path.
func navigatePath(data map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")

	var current any = data

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
