package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerflow/ledgerflow/pkg/registry"
)

func conditionOrchestrator() *Orchestrator {
	return New(registry.NewRegistry(nil))
}

func TestEvaluateConditionEquality(t *testing.T) {
	o := conditionOrchestrator()
	outputs := map[string]any{
		"billing": map[string]any{
			"plan":  "enterprise",
			"total": 110.5,
		},
	}

	assert.True(t, o.evaluateCondition("billing.plan == 'enterprise'", outputs))
	assert.True(t, o.evaluateCondition(`billing.plan == "enterprise"`, outputs))
	assert.False(t, o.evaluateCondition("billing.plan == 'starter'", outputs))

	// Non-string values compare through their printed form.
	assert.True(t, o.evaluateCondition("billing.total == 110.5", outputs))
}

func TestEvaluateConditionNestedPath(t *testing.T) {
	o := conditionOrchestrator()
	outputs := map[string]any{
		"invoice": map[string]any{
			"customer": map[string]any{
				"region": "us-east",
			},
		},
	}

	assert.True(t, o.evaluateCondition("invoice.customer.region == 'us-east'", outputs))
	assert.False(t, o.evaluateCondition("invoice.customer.region == 'eu-west'", outputs))
}

func TestEvaluateConditionFailsOpen(t *testing.T) {
	o := conditionOrchestrator()
	outputs := map[string]any{
		"billing": map[string]any{"plan": "enterprise"},
	}

	// Empty, unparseable, and unresolvable conditions all pass.
	assert.True(t, o.evaluateCondition("", outputs))
	assert.True(t, o.evaluateCondition("   ", outputs))
	assert.True(t, o.evaluateCondition("billing.plan > 'a'", outputs))
	assert.True(t, o.evaluateCondition("missing.path == 'x'", outputs))
	assert.True(t, o.evaluateCondition("billing.plan.deeper == 'x'", outputs))
}
