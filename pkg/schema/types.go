package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
	// JSONSchema describes the type as a JSON Schema fragment.
	JSONSchema() map[string]any
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func (t *StringType) JSONSchema() map[string]any { return map[string]any{"type": "string"} }

// IntType validates integer values. Whole floats are accepted since JSON decodes numbers as float64.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

func (t *IntType) JSONSchema() map[string]any { return map[string]any{"type": "integer"} }

// NumberType validates numeric values. Numeric strings are accepted because models
// frequently quote numbers in tool arguments.
type NumberType struct{}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	if _, err := AsFloat(value); err != nil {
		return err
	}
	return nil
}

func (t *NumberType) JSONSchema() map[string]any { return map[string]any{"type": "number"} }

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (t *BoolType) JSONSchema() map[string]any { return map[string]any{"type": "boolean"} }

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (t *SliceType) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": t.elemType.JSONSchema()}
}

// ObjectType accepts any JSON object.
type ObjectType struct{}

func (t *ObjectType) Name() string { return "object" }

func (t *ObjectType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

func (t *ObjectType) JSONSchema() map[string]any { return map[string]any{"type": "object"} }

// AnyType accepts every non-nil value.
type AnyType struct{}

func (t *AnyType) Name() string { return "any" }

func (t *AnyType) Validate(value any) error {
	if value == nil {
		return fmt.Errorf("expected a value, got null")
	}
	return nil
}

func (t *AnyType) JSONSchema() map[string]any { return map[string]any{} }

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	base     Type
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	if t.base != nil {
		if err := t.base.Validate(value); err != nil {
			return err
		}
	}
	return t.validate(value)
}

func (t *CustomType) JSONSchema() map[string]any {
	if t.base != nil {
		return t.base.JSONSchema()
	}
	return map[string]any{}
}

// OptionalType marks a field that may be absent.
type OptionalType struct {
	Type
}

// DescribedType attaches a description shown to the model.
type DescribedType struct {
	Type
	Description string
}

func (t *DescribedType) JSONSchema() map[string]any {
	out := t.Type.JSONSchema()
	out["description"] = t.Description
	return out
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Number creates a lenient numeric type validator.
func Number() Type { return &NumberType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Object creates a validator for free-form objects.
func Object() Type { return &ObjectType{} }

// Any creates a validator accepting every non-null value.
func Any() Type { return &AnyType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Custom creates a validator that runs validate after base (which may be nil).
func Custom(name string, base Type, validate func(any) error) Type {
	return &CustomType{name: name, base: base, validate: validate}
}

// Optional marks t as not required.
func Optional(t Type) Type { return &OptionalType{Type: t} }

// Describe attaches a model-facing description to t.
func Describe(t Type, description string) Type {
	return &DescribedType{Type: t, Description: description}
}

// IsOptional reports whether t (or a type it wraps) was marked Optional.
func IsOptional(t Type) bool {
	for {
		switch v := t.(type) {
		case *OptionalType:
			return true
		case *DescribedType:
			t = v.Type
		default:
			return false
		}
	}
}

// AsFloat converts JSON numbers, Go numerics and numeric strings to float64.
func AsFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got non-numeric string %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

// ParseType converts a type name to a Type.
// Both the short names ("int", "float", "bool", "[string]") and JSON Schema names
// ("integer", "number", "boolean", "array", "object") are understood.
func ParseType(typeStr string) (Type, error) {
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elemType, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elemType), nil
	}

	switch typeStr {
	case "string":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number":
		return Number(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "object":
		return Object(), nil
	case "array":
		return Slice(Any()), nil
	case "any", "":
		return Any(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}
