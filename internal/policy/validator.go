package policy

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/errors"
)

//go:embed front.rego
var policyContent string

const moduleName = "front.rego"

type Validator struct {
	prepared rego.PreparedEvalQuery
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

func NewValidator() (*Validator, error) {
	query, err := rego.New(
		rego.Query("data.frontstack.allow"),
		rego.Module(moduleName, policyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &Validator{
		prepared: query,
	}, nil
}

// Validate renders t and evaluates it. A template that fails the policy
// returns an error wrapping ErrPolicyViolation.
func (v *Validator) Validate(ctx context.Context, t *cfn.Template, fronts ...string) error {
	m, err := t.Map()
	if err != nil {
		return err
	}

	result, err := v.ValidateTemplate(ctx, m, fronts...)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s", errors.ErrPolicyViolation, strings.Join(result.Violations, "; "))
	}
	return nil
}

// ValidateTemplate evaluates a decoded template. When fronts is not empty,
// every logical id must be prefixed by one of them.
func (v *Validator) ValidateTemplate(ctx context.Context, template map[string]any, fronts ...string) (*ValidationResult, error) {
	input := map[string]any{
		"Resources": template["Resources"],
	}

	if len(fronts) == 0 {
		results, err := v.prepared.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate policy: %w", err)
		}
		return v.result(ctx, results, input, nil)
	}

	names := make([]any, 0, len(fronts))
	for _, f := range fronts {
		names = append(names, f)
	}
	data := map[string]any{
		"fronts": names,
	}

	query, err := rego.New(
		rego.Query("data.frontstack.allow"),
		rego.Module(moduleName, policyContent),
		rego.Store(inmem.NewFromObject(data)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query with data: %w", err)
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	return v.result(ctx, results, input, data)
}

func (v *Validator) result(ctx context.Context, results rego.ResultSet, input, data map[string]any) (*ValidationResult, error) {
	if len(results) == 0 {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned no results"},
		}, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned non-boolean result"},
		}, nil
	}

	result := &ValidationResult{
		Allowed: allowed,
	}

	if !allowed {
		violations, err := v.getViolations(ctx, input, data)
		if err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		result.Violations = violations
	}

	return result, nil
}

func (v *Validator) getViolations(ctx context.Context, input, data map[string]any) ([]string, error) {
	options := []func(*rego.Rego){
		rego.Query("data.frontstack.violations"),
		rego.Module(moduleName, policyContent),
	}
	if data != nil {
		options = append(options, rego.Store(inmem.NewFromObject(data)))
	}

	violationQuery, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare violations query: %w", err)
	}

	results, err := violationQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate violations: %w", err)
	}

	if len(results) == 0 || results[0].Expressions[0].Value == nil {
		return []string{"unknown policy violation"}, nil
	}

	var violations []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, violation := range v {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]any:
		for violation := range v {
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return []string{"policy validation failed but no specific violations found"}, nil
	}

	sort.Strings(violations)
	return violations, nil
}
