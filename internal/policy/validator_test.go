package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/awslabs/goformation/v7/cloudformation/cloudfront"
	"github.com/awslabs/goformation/v7/cloudformation/iam"
	"github.com/savaki/front-deployer/internal/cfn"
	errs "github.com/savaki/front-deployer/internal/errors"
	"github.com/savaki/front-deployer/internal/synth"
	"github.com/savaki/front-deployer/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthesize(t *testing.T, props ...topology.Props) *cfn.Template {
	t.Helper()

	var fronts []*topology.Topology
	for _, p := range props {
		topo, err := topology.New(p)
		require.NoError(t, err)
		fronts = append(fronts, topo)
	}

	tmpl, err := synth.Template(fronts...)
	require.NoError(t, err)
	return tmpl
}

func TestValidator_SynthesizedTemplates(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name   string
		props  []topology.Props
		fronts []string
	}{
		{
			name:   "default front",
			props:  []topology.Props{{FrontName: "Front"}},
			fronts: []string{"Front"},
		},
		{
			name:   "resolved account",
			props:  []topology.Props{{FrontName: "Front", AccountID: "123456789012", Partition: "aws"}},
			fronts: []string{"Front"},
		},
		{
			name:   "several fronts",
			props:  []topology.Props{{FrontName: "Front"}, {FrontName: "Admin", Branch: "main"}},
			fronts: []string{"Front", "Admin"},
		},
		{
			name:  "no prefix check",
			props: []topology.Props{{FrontName: "Docs"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := synthesize(t, tt.props...)
			assert.NoError(t, validator.Validate(context.Background(), tmpl, tt.fronts...))
		})
	}
}

func TestValidator_RejectsTamperedTemplate(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	t.Run("wrong prefix", func(t *testing.T) {
		tmpl := synthesize(t, topology.Props{FrontName: "Front"})
		err := validator.Validate(context.Background(), tmpl, "Admin")
		assert.True(t, errors.Is(err, errs.ErrPolicyViolation), "got %v", err)
	})

	t.Run("distribution without dependency", func(t *testing.T) {
		tmpl := synthesize(t, topology.Props{FrontName: "Front"})
		r, ok := tmpl.Resources["FrontDistribution"].(*cloudfront.Distribution)
		require.True(t, ok)
		r.AWSCloudFormationDependsOn = nil

		err := validator.Validate(context.Background(), tmpl)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrPolicyViolation))
		assert.Contains(t, err.Error(), "Distribution 'FrontDistribution' must depend on its bucket policy")
	})

	t.Run("widened invalidation", func(t *testing.T) {
		tmpl := synthesize(t, topology.Props{FrontName: "Front"})
		r, ok := tmpl.Resources["FrontInvalidateProjectRolePolicy"].(*iam.Policy)
		require.True(t, ok)
		r.PolicyDocument = cfn.NewPolicyDocument(cfn.Statement{
			Effect:   "Allow",
			Action:   []string{"cloudfront:CreateInvalidation", "cloudfront:GetInvalidation"},
			Resource: []cfn.String{cfn.Literal("*")},
		})

		err := validator.Validate(context.Background(), tmpl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "in a statement of its own")
		assert.Contains(t, err.Error(), "grants access to every resource")
	})
}

func TestValidator_ViolationsAreSorted(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	template := map[string]any{
		"Resources": map[string]any{
			"B": map[string]any{"Type": "AWS::EC2::Instance"},
			"A": map[string]any{"Type": "AWS::RDS::DBCluster"},
		},
	}

	result, err := validator.ValidateTemplate(context.Background(), template)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, []string{
		"Resource type 'AWS::EC2::Instance' is not allowed",
		"Resource type 'AWS::RDS::DBCluster' is not allowed",
	}, result.Violations)
}
