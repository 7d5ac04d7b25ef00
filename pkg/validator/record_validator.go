package validator

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// FieldType is the value type a converted field must hold.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// RecordValidator checks converted records against field definitions.
type RecordValidator struct{}

// NewRecordValidator creates a new record validator
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{}
}

// FieldDefinition represents a field definition for validation
type FieldDefinition struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	MaxLength int       `json:"maxLength,omitempty"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Messages returns the error messages in definition order.
func (r ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

// ValidateRecord validates record values against definitions, in definition
// order. Fields of the record without a definition are not checked.
func (rv *RecordValidator) ValidateRecord(record map[string]any, definitions []FieldDefinition) ValidationResult {
	result := ValidationResult{
		IsValid: true,
		Errors:  []ValidationError{},
	}

	for _, def := range definitions {
		value, exists := record[def.Name]

		if def.Required && isBlank(value, exists) {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   def.Name,
				Message: fmt.Sprintf("missing required field '%s'", def.Name),
			})
			continue
		}

		if !exists || value == nil {
			continue
		}

		if err := rv.validateFieldType(def.Name, value, def.Type); err != nil {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   def.Name,
				Message: err.Error(),
				Value:   value,
			})
			continue
		}

		if def.MaxLength > 0 {
			if s, ok := value.(string); ok && utf8.RuneCountInString(s) > def.MaxLength {
				result.IsValid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' length %d is greater than maximum %d", def.Name, utf8.RuneCountInString(s), def.MaxLength),
					Value:   value,
				})
			}
		}
	}

	return result
}

func isBlank(value any, exists bool) bool {
	if !exists || value == nil {
		return true
	}
	if s, ok := value.(string); ok && s == "" {
		return true
	}
	return false
}

// validateFieldType validates the type of a field value
func (rv *RecordValidator) validateFieldType(fieldName string, value any, expectedType FieldType) error {
	switch expectedType {
	case FieldTypeString, "":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", fieldName, value)
		}
	case FieldTypeInteger:
		if _, ok := value.(int64); !ok {
			return fmt.Errorf("field '%s' must be an integer, got %T", fieldName, value)
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", fieldName, value)
		}
	case FieldTypeDate:
		if _, ok := value.(time.Time); !ok {
			return fmt.Errorf("field '%s' must be a date, got %T", fieldName, value)
		}
	default:
		return fmt.Errorf("unknown field type: %s", expectedType)
	}
	return nil
}
