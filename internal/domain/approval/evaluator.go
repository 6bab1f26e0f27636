package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"comercia/internal/core/apperror"
	"comercia/pkg/logger"
)

// factDeclarations are the variables rule expressions may reference.
// Facts not provided at evaluation time fall back to zero values.
var factDeclarations = []cel.EnvOption{
	cel.Variable("total", cel.DoubleType),
	cel.Variable("subtotal", cel.DoubleType),
	cel.Variable("items_count", cel.IntType),
	cel.Variable("currency", cel.StringType),
	cel.Variable("supplier_id", cel.StringType),
	cel.Variable("supplier_new", cel.BoolType),
	cel.Variable("sucursal_id", cel.StringType),
	cel.Variable("created_by", cel.StringType),
}

func defaultFacts() Facts {
	return Facts{
		"total":        0.0,
		"subtotal":     0.0,
		"items_count":  int64(0),
		"currency":     "",
		"supplier_id":  "",
		"supplier_new": false,
		"sucursal_id":  "",
		"created_by":   "",
	}
}

// Evaluator compiles and evaluates approval rules. Compiled programs are
// cached per rule id and version; editing a rule invalidates its entry.
type Evaluator struct {
	rules RuleRepository
	env   *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator(rules RuleRepository) (*Evaluator, error) {
	env, err := cel.NewEnv(factDeclarations...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Evaluator{
		rules: rules,
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// CheckExpression compiles an expression without evaluating it. Used when
// rules are created or edited.
func (e *Evaluator) CheckExpression(expression string) error {
	ast, iss := e.env.Compile(expression)
	if iss.Err() != nil {
		return apperror.NewValidation("invalid rule expression").
			WithDetail("field", "expression").
			WithDetail("compile_error", iss.Err().Error())
	}
	if ast.OutputType() != cel.BoolType {
		return apperror.NewValidation("rule expression must yield a boolean").
			WithDetail("field", "expression").
			WithDetail("output_type", ast.OutputType().String())
	}
	return nil
}

// EvaluateRequiresApproval evaluates the active rules for an entity type in
// priority order and returns the first matching rule, or nil when none match.
// A rule that fails to compile or evaluate is skipped: a broken rule must not
// block document flow.
func (e *Evaluator) EvaluateRequiresApproval(ctx context.Context, entityType string, facts Facts) (*Rule, error) {
	rules, err := e.rules.ListActive(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("list approval rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	activation := defaultFacts()
	for k, v := range facts {
		activation[k] = v
	}

	for _, rule := range rules {
		prg, err := e.program(rule)
		if err != nil {
			logger.Warn(ctx, "skipping uncompilable approval rule",
				"rule_code", rule.Code, "error", err)
			continue
		}

		out, _, err := prg.Eval(map[string]any(activation))
		if err != nil {
			logger.Warn(ctx, "approval rule evaluation failed",
				"rule_code", rule.Code, "error", err)
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return rule, nil
		}
	}
	return nil, nil
}

func (e *Evaluator) program(rule *Rule) (cel.Program, error) {
	key := fmt.Sprintf("%s:%d", rule.ID, rule.Version)

	e.mu.RLock()
	prg, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(rule.Expression)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = prg
	e.mu.Unlock()
	return prg, nil
}
