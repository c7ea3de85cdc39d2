package schema

import (
	"encoding/json"
	"fmt"
)

// JSONSchema renders the schema as a JSON Schema object definition.
func (s Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s))
	for name, typ := range s {
		properties[name] = typ.JSONSchema()
	}
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if required := s.Required(); len(required) > 0 {
		out["required"] = required
	}
	return out
}

// FromJSONSchema builds a Schema from a JSON Schema object definition.
// Unknown or missing property types map to Any so that remote tools with richer
// schemas are still validated for presence.
func FromJSONSchema(raw map[string]any) (Schema, error) {
	if len(raw) == 0 {
		return Schema{}, nil
	}
	if typ, ok := raw["type"].(string); ok && typ != "object" {
		return nil, fmt.Errorf("schema: top-level type must be object, got %q", typ)
	}

	required := make(map[string]bool)
	switch list := raw["required"].(type) {
	case []any:
		for _, item := range list {
			if name, ok := item.(string); ok {
				required[name] = true
			}
		}
	case []string:
		for _, name := range list {
			required[name] = true
		}
	}

	props, _ := raw["properties"].(map[string]any)
	out := make(Schema, len(props))
	for name, def := range props {
		propDef, _ := def.(map[string]any)
		typ := propertyType(propDef)
		if desc, ok := propDef["description"].(string); ok && desc != "" {
			typ = Describe(typ, desc)
		}
		if !required[name] {
			typ = Optional(typ)
		}
		out[name] = typ
	}
	return out, nil
}

func propertyType(def map[string]any) Type {
	typeName, _ := def["type"].(string)
	if typeName == "array" {
		if items, ok := def["items"].(map[string]any); ok {
			return Slice(propertyType(items))
		}
	}
	typ, err := ParseType(typeName)
	if err != nil {
		return Any()
	}
	return typ
}

// MarshalJSON serializes the schema as a JSON Schema object.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	for key, typ := range s {
		if typ == nil {
			return nil, fmt.Errorf("field %s: type is nil", key)
		}
	}
	return json.Marshal(s.JSONSchema())
}

// UnmarshalJSON deserializes the schema from a JSON Schema object.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("schema: UnmarshalJSON on nil pointer")
	}
	if string(data) == "null" {
		*s = nil
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromJSONSchema(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
