package workflow

import (
	"log/slog"
)

// Context is handed to every step invocation of a workflow run. Parameters
// are fixed at construction; BusinessContext is the mutable side channel for
// cross-step data and becomes the workflow's output.
type Context struct {
	WorkflowID        string
	WorkflowType      string
	TenantID          string
	Parameters        map[string]any
	BusinessContext   map[string]any
	RequireApproval   bool
	ApprovalThreshold float64
	Logger            *slog.Logger
}

// Param returns the named parameter, or nil when absent.
func (c *Context) Param(key string) any {
	return c.Parameters[key]
}

// StringParam returns the named parameter as a string, or empty when absent
// or of another type.
func (c *Context) StringParam(key string) string {
	v, _ := c.Parameters[key].(string)

	return v
}

// FloatParam returns the named parameter as a float64, converting integer
// values where possible.
func (c *Context) FloatParam(key string) float64 {
	switch v := c.Parameters[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Set records a value in the business context.
func (c *Context) Set(key string, value any) {
	if c.BusinessContext == nil {
		c.BusinessContext = make(map[string]any)
	}

	c.BusinessContext[key] = value
}
