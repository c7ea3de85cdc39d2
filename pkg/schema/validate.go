package schema

import "sort"

// Schema is a map of argument names to their expected types.
// Example: {"city": String(), "num_days": Optional(Int())}
type Schema map[string]Type

// Validate checks if data conforms to the schema.
// Returns an *AggregateError listing every failure, in field-name order.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var errs []error
	for _, fieldName := range schema.Fields() {
		fieldType := schema[fieldName]
		value, exists := data[fieldName]
		if !exists || value == nil {
			if IsOptional(fieldType) {
				continue
			}
			errs = append(errs, &ValidationError{Key: fieldName, Reason: "required"})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Required returns the names of the fields not marked Optional, sorted.
func (s Schema) Required() []string {
	var names []string
	for _, name := range s.Fields() {
		if !IsOptional(s[name]) {
			names = append(names, name)
		}
	}
	return names
}
