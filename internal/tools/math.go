package tools

import (
	"context"
	"math"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
)

type binaryArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type powerArgs struct {
	Base     float64 `json:"base"`
	Exponent float64 `json:"exponent"`
}

var binaryParams = schema.Schema{
	"a": schema.Describe(schema.Number(), "first operand"),
	"b": schema.Describe(schema.Number(), "second operand"),
}

func binary(name, description string, op func(a, b float64) (float64, error)) registry.Tool {
	return registry.Tool{
		Name:        name,
		Description: description,
		Params:      binaryParams,
		Handler: registry.Typed(func(_ context.Context, args binaryArgs) (any, error) {
			return finite(op(args.A, args.B))
		}),
	}
}

// MathTools returns the arithmetic tools. Operands may be numbers or numeric strings.
func MathTools() []registry.Tool {
	return []registry.Tool{
		binary("add", "Return the sum of two numbers.", func(a, b float64) (float64, error) {
			return a + b, nil
		}),
		binary("subtract", "Return the difference of two numbers.", func(a, b float64) (float64, error) {
			return a - b, nil
		}),
		binary("multiply", "Return the product of two numbers.", func(a, b float64) (float64, error) {
			return a * b, nil
		}),
		binary("divide", "Return the quotient of two numbers.", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, domain.NewToolError(domain.ReasonInvalidArguments, "division by zero")
			}
			return a / b, nil
		}),
		binary("modulus", "Return the remainder of a divided by b.", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, domain.NewToolError(domain.ReasonInvalidArguments, "modulus by zero")
			}
			// Sign follows the divisor.
			m := math.Mod(a, b)
			if m != 0 && (m < 0) != (b < 0) {
				m += b
			}
			return m, nil
		}),
		binary("root", "Return the b-th root of a.", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, domain.NewToolError(domain.ReasonInvalidArguments, "zeroth root is undefined")
			}
			if a < 0 {
				// Odd integer roots of negatives are real.
				if b == math.Trunc(b) && math.Mod(b, 2) != 0 {
					return -math.Pow(-a, 1/b), nil
				}
				return 0, domain.NewToolError(domain.ReasonInvalidArguments, "even root of a negative number")
			}
			return math.Pow(a, 1/b), nil
		}),
		{
			Name:        "power",
			Description: "Return the base raised to the exponent power.",
			Params: schema.Schema{
				"base":     schema.Number(),
				"exponent": schema.Number(),
			},
			Handler: registry.Typed(func(_ context.Context, args powerArgs) (any, error) {
				return finite(math.Pow(args.Base, args.Exponent), nil)
			}),
		},
	}
}

func finite(v float64, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domain.NewToolError(domain.ReasonInvalidArguments, "result is not a finite number")
	}
	return v, nil
}
