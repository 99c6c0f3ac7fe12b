package authz

import (
	"errors"
	"testing"

	"github.com/savaki/front-deployer/internal/cfn"
	errs "github.com/savaki/front-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invalidateGrant(resources ...cfn.String) Grant {
	return Grant{
		Name:       "FrontInvalidate",
		Holder:     "FrontInvalidateProject",
		Attachment: RolePolicy,
		Effect:     Allow,
		Actions:    []string{"cloudfront:CreateInvalidation"},
		Resources:  resources,
	}
}

func TestChecker(t *testing.T) {
	distribution := cfn.Sub("arn:${AWS::Partition}:cloudfront::${AWS::AccountId}:distribution/${FrontDistribution}")

	checker := NewChecker(true,
		ExactActions{Grant: "FrontInvalidate", Actions: []string{"cloudfront:CreateInvalidation"}},
		SingleResource{Grant: "FrontInvalidate"},
		NoGlobalWildcard{},
	)

	tests := map[string]struct {
		grant Grant
		ok    bool
	}{
		"scoped":          {grant: invalidateGrant(distribution), ok: true},
		"wildcard":        {grant: invalidateGrant(cfn.Literal("*"))},
		"two resources":   {grant: invalidateGrant(distribution, distribution)},
		"wildcard suffix": {grant: invalidateGrant(cfn.Sub("arn:aws:cloudfront::123456789012:distribution/*"))},
		"no resources":    {grant: invalidateGrant()},
		"extra action": {grant: func() Grant {
			g := invalidateGrant(distribution)
			g.Actions = append(g.Actions, "cloudfront:GetDistribution")
			return g
		}()},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := checker.Check([]Grant{tt.grant})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrPolicyViolation))
		})
	}

	t.Run("disabled", func(t *testing.T) {
		assert.NoError(t, NewChecker(false, NoGlobalWildcard{}).Check([]Grant{invalidateGrant()}))
	})
}

func TestExactResources(t *testing.T) {
	bucket := cfn.GetAtt("FrontBucket", "Arn")
	objects := cfn.Join(bucket, cfn.Literal("/*"))
	policy := ExactResources{Grant: "FrontEdgeRead", Resources: []cfn.String{bucket, objects}}

	grant := Grant{Name: "FrontEdgeRead", Actions: []string{"s3:GetObject"}, Resources: []cfn.String{objects, bucket}}
	assert.NoError(t, policy.Authorize(grant))

	grant.Resources = []cfn.String{objects}
	assert.Error(t, policy.Authorize(grant))

	// other grants are not constrained
	assert.NoError(t, policy.Authorize(Grant{Name: "FrontCleanup"}))
}

func TestGrant_Statement(t *testing.T) {
	grant := Grant{
		Name:       "FrontEdgeRead",
		Effect:     Allow,
		Principals: []Principal{{Type: CanonicalUser, ID: cfn.GetAtt("FrontWebsiteIdentity", "S3CanonicalUserId")}},
		Actions:    []string{"s3:GetObject"},
		Resources:  []cfn.String{cfn.GetAtt("FrontBucket", "Arn")},
	}

	stmt := grant.Statement()
	assert.Equal(t, "FrontEdgeRead", stmt.Sid)
	assert.Equal(t, "Allow", stmt.Effect)
	assert.Len(t, stmt.Principal["CanonicalUser"], 1)
	assert.Equal(t, []string{"${FrontBucket.Arn}"}, grant.ResourceTexts())
}

func TestSameSet(t *testing.T) {
	assert.True(t, sameSet([]string{"b", "a"}, []string{"a", "b"}))
	assert.False(t, sameSet([]string{"a", "a"}, []string{"a"}))
	assert.False(t, sameSet([]string{"a"}, []string{"a", "b"}))
}
