// Package schema validates tool arguments against declared parameter types.
//
// A Schema maps argument names to Types. Every field is required unless wrapped
// with Optional, and any field can carry a description for the model:
//
//	params := schema.Schema{
//	    "city":     schema.Describe(schema.String(), "City name, e.g. Lisbon"),
//	    "num_days": schema.Optional(schema.Int()),
//	}
//
//	if err := schema.Validate(params, args); err != nil {
//	    // err is an *AggregateError listing every failing field
//	}
//
// Schemas convert to and from JSON Schema objects, which is the shape both the
// chat-completions API and MCP use to advertise tool parameters:
//
//	raw := params.JSONSchema()          // {"type":"object","properties":{...},"required":[...]}
//	back, err := schema.FromJSONSchema(raw)
package schema
