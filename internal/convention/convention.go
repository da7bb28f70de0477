// Package convention provides the account naming-convention policy.
//
// Detection treats certain account-ID prefixes as hints: merchant-style
// IDs dampen suspicion scoring, and destination-style IDs mark layering
// exit points. The prefixes are dataset conventions, not laws, so the
// policy is expressed as CEL predicates over the variable `id` and can
// be swapped per deployment.
package convention

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Policy answers naming-convention questions about account IDs.
type Policy struct {
	merchant    cel.Program
	destination cel.Program
}

// New compiles the configured CEL expressions into a Policy.
func New(cfg domain.ConventionConfig) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	merchant, err := compile(env, cfg.MerchantExpression)
	if err != nil {
		return nil, fmt.Errorf("merchant expression: %w", err)
	}

	destination, err := compile(env, cfg.DestinationExpression)
	if err != nil {
		return nil, fmt.Errorf("destination expression: %w", err)
	}

	return &Policy{merchant: merchant, destination: destination}, nil
}

// Default returns a Policy built from the reference dataset
// conventions. Panics on compile failure, which can only happen if the
// built-in expressions are broken.
func Default() *Policy {
	p, err := New(domain.DefaultConventionConfig())
	if err != nil {
		panic(fmt.Sprintf("default convention policy: %v", err))
	}
	return p
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must evaluate to bool, got %v", ast.OutputType())
	}
	return env.Program(ast)
}

// IsMerchant reports whether the account ID follows the merchant
// naming convention.
func (p *Policy) IsMerchant(id string) bool {
	return p.eval(p.merchant, id)
}

// IsDestination reports whether the account ID follows the terminal
// destination naming convention.
func (p *Policy) IsDestination(id string) bool {
	return p.eval(p.destination, id)
}

// eval runs a compiled predicate. Evaluation errors read as false so a
// bad custom expression degrades detection rather than failing it.
func (p *Policy) eval(prog cel.Program, id string) bool {
	out, _, err := prog.Eval(map[string]any{"id": id})
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}
