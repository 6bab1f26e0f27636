package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comercia/internal/core/id"
)

type fakeRules struct {
	rules []*Rule
}

func (f *fakeRules) ListActive(ctx context.Context, entityType string) ([]*Rule, error) {
	var out []*Rule
	for _, r := range f.rules {
		if r.EntityType == entityType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) Create(ctx context.Context, r *Rule) error        { return nil }
func (f *fakeRules) Update(ctx context.Context, r *Rule) error        { return nil }
func (f *fakeRules) GetByID(ctx context.Context, _ id.ID) (*Rule, error) { return nil, nil }

func newRule(code, entityType, expression string, priority int) *Rule {
	r := &Rule{
		Code:       code,
		EntityType: entityType,
		Expression: expression,
		Priority:   priority,
		Active:     true,
	}
	r.ID = id.New()
	return r
}

func TestEvaluate_NoRulesMeansNoApproval(t *testing.T) {
	ev, err := NewEvaluator(&fakeRules{})
	require.NoError(t, err)

	rule, err := ev.EvaluateRequiresApproval(context.Background(), "orden_compra", Facts{"total": 1000000.0})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestEvaluate_ThresholdRule(t *testing.T) {
	rules := &fakeRules{rules: []*Rule{
		newRule("APR-TOTAL", "orden_compra", "total > 50000.0", 10),
	}}
	ev, err := NewEvaluator(rules)
	require.NoError(t, err)

	rule, err := ev.EvaluateRequiresApproval(context.Background(), "orden_compra", Facts{"total": 75000.0})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "APR-TOTAL", rule.Code)

	rule, err = ev.EvaluateRequiresApproval(context.Background(), "orden_compra", Facts{"total": 40000.0})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestEvaluate_CompoundExpression(t *testing.T) {
	rules := &fakeRules{rules: []*Rule{
		newRule("APR-RISK", "orden_compra", "total > 50000.0 || supplier_new", 10),
	}}
	ev, err := NewEvaluator(rules)
	require.NoError(t, err)

	rule, err := ev.EvaluateRequiresApproval(context.Background(), "orden_compra",
		Facts{"total": 100.0, "supplier_new": true})
	require.NoError(t, err)
	require.NotNil(t, rule)
}

func TestEvaluate_MissingFactsDefaultToZero(t *testing.T) {
	rules := &fakeRules{rules: []*Rule{
		newRule("APR-TOTAL", "orden_compra", "total > 50000.0", 10),
	}}
	ev, err := NewEvaluator(rules)
	require.NoError(t, err)

	rule, err := ev.EvaluateRequiresApproval(context.Background(), "orden_compra", Facts{})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestEvaluate_BrokenRuleIsSkipped(t *testing.T) {
	rules := &fakeRules{rules: []*Rule{
		newRule("APR-BROKEN", "orden_compra", "nonexistent_var > 1.0", 5),
		newRule("APR-TOTAL", "orden_compra", "total > 50000.0", 10),
	}}
	ev, err := NewEvaluator(rules)
	require.NoError(t, err)

	rule, err := ev.EvaluateRequiresApproval(context.Background(), "orden_compra", Facts{"total": 75000.0})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "APR-TOTAL", rule.Code)
}

func TestCheckExpression(t *testing.T) {
	ev, err := NewEvaluator(&fakeRules{})
	require.NoError(t, err)

	assert.NoError(t, ev.CheckExpression(`total > 50000.0 && currency == "MXN"`))
	assert.Error(t, ev.CheckExpression(`total >`), "syntax error")
	assert.Error(t, ev.CheckExpression(`total + 1.0`), "non-boolean output")
}
