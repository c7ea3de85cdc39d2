package registry

import (
	"context"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Typed adapts a handler taking a decoded argument struct.
// Fields are matched by their `json` tag and decoded weakly, so "3" fills a float64.
func Typed[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args T
		if err := Decode(raw, &args); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

// Decode fills out from raw tool arguments.
func Decode(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return domain.NewToolError(domain.ReasonInvalidArguments, "%v", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.NewToolError(domain.ReasonInvalidArguments, "%v", err)
	}
	return nil
}
