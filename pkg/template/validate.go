package template

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// validateParameterDeclarations rejects templates whose parameter schemas are
// internally inconsistent.
func validateParameterDeclarations(template *models.WorkflowTemplate) error {
	for _, param := range template.Parameters {
		switch param.Type {
		case models.ParameterString, models.ParameterInteger, models.ParameterDecimal,
			models.ParameterBoolean, models.ParameterEnum, models.ParameterList,
			models.ParameterObject, models.ParameterReference:
		default:
			return fmt.Errorf("template %q parameter %q: unknown type %q", template.TemplateID, param.Name, param.Type)
		}

		if param.Type == models.ParameterEnum && len(param.AllowedValues) == 0 {
			return fmt.Errorf("template %q parameter %q: enum type requires allowed values", template.TemplateID, param.Name)
		}

		if param.Pattern != "" {
			if _, err := regexp.Compile(param.Pattern); err != nil {
				return fmt.Errorf("template %q parameter %q: invalid pattern: %w", template.TemplateID, param.Name, err)
			}
		}

		for _, dep := range param.DependsOn {
			if _, ok := template.ParameterByName(dep); !ok {
				return fmt.Errorf("template %q parameter %q depends on undeclared parameter %q", template.TemplateID, param.Name, dep)
			}
		}
	}

	return nil
}

func validateConfiguration(template *models.WorkflowTemplate, params map[string]any) *models.TemplateValidationResult {
	result := &models.TemplateValidationResult{Valid: true}

	for _, param := range template.Parameters {
		value, present := params[param.Name]

		if !present || value == nil {
			if param.Required && param.Default == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("required parameter %q is missing", param.Name))
			}

			continue
		}

		if msg := validateValue(param, value); msg != "" {
			result.Errors = append(result.Errors, msg)
		}

		for _, dep := range param.DependsOn {
			if depValue, ok := params[dep]; !ok || depValue == nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("parameter %q depends on %q, which is not set", param.Name, dep))
			}
		}
	}

	result.Valid = len(result.Errors) == 0

	return result
}

func validateValue(param *models.ConfigurationParameter, value any) string {
	switch param.Type {
	case models.ParameterString, models.ParameterReference:
		return validateStringValue(param, value)
	case models.ParameterInteger:
		f, ok := asFloat(value)
		if !ok || f != float64(int64(f)) {
			return fmt.Sprintf("parameter %q must be an integer, got %T", param.Name, value)
		}

		return validateRange(param, f)
	case models.ParameterDecimal:
		f, ok := asFloat(value)
		if !ok {
			return fmt.Sprintf("parameter %q must be a number, got %T", param.Name, value)
		}

		return validateRange(param, f)
	case models.ParameterBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("parameter %q must be a boolean, got %T", param.Name, value)
		}
	case models.ParameterEnum:
		for _, allowed := range param.AllowedValues {
			if fmt.Sprint(value) == fmt.Sprint(allowed) {
				return ""
			}
		}

		return fmt.Sprintf("parameter %q value %v is not in the allowed set %v", param.Name, value, param.AllowedValues)
	case models.ParameterList:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("parameter %q must be a list, got %T", param.Name, value)
		}
	case models.ParameterObject:
		object, ok := value.(map[string]any)
		if !ok {
			return fmt.Sprintf("parameter %q must be an object, got %T", param.Name, value)
		}

		return validateObjectSchema(param, object)
	}

	return ""
}

func validateStringValue(param *models.ConfigurationParameter, value any) string {
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("parameter %q must be a string, got %T", param.Name, value)
	}

	if param.MinLength != nil && len(s) < *param.MinLength {
		return fmt.Sprintf("parameter %q is shorter than %d characters", param.Name, *param.MinLength)
	}

	if param.MaxLength != nil && len(s) > *param.MaxLength {
		return fmt.Sprintf("parameter %q is longer than %d characters", param.Name, *param.MaxLength)
	}

	if param.Pattern != "" {
		// Pattern validity is checked at registration time.
		matched, err := regexp.MatchString(param.Pattern, s)
		if err != nil || !matched {
			return fmt.Sprintf("parameter %q does not match pattern %q", param.Name, param.Pattern)
		}
	}

	return ""
}

func validateRange(param *models.ConfigurationParameter, f float64) string {
	if param.MinValue != nil && f < *param.MinValue {
		return fmt.Sprintf("parameter %q is below the minimum %v", param.Name, *param.MinValue)
	}

	if param.MaxValue != nil && f > *param.MaxValue {
		return fmt.Sprintf("parameter %q is above the maximum %v", param.Name, *param.MaxValue)
	}

	return ""
}

// validateObjectSchema checks an object-typed parameter against its embedded
// JSON Schema, when one is declared.
func validateObjectSchema(param *models.ConfigurationParameter, object map[string]any) string {
	if param.Schema == nil {
		return ""
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(param.Schema),
		gojsonschema.NewGoLoader(object),
	)
	if err != nil {
		return fmt.Sprintf("parameter %q schema validation failed: %v", param.Name, err)
	}

	if !result.Valid() {
		msg := fmt.Sprintf("parameter %q does not match its schema:", param.Name)
		for _, desc := range result.Errors() {
			msg += " " + desc.String() + ";"
		}

		return msg
	}

	return ""
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
