package topology

import (
	"github.com/savaki/front-deployer/internal/authz"
	"github.com/savaki/front-deployer/internal/cfn"
)

// Policies returns the least-privilege rules every front must satisfy:
//   - the edge identity may only read objects of its own bucket;
//   - the cleanup stage is confined to its own bucket;
//   - the invalidation stage may only invalidate its own distribution.
func (t *Topology) Policies() []authz.Policy {
	return []authz.Policy{
		authz.NoGlobalWildcard{},
		authz.ExactActions{
			Grant:   EdgeReadGrant(t.Name),
			Actions: []string{"s3:GetObject"},
		},
		authz.ExactResources{
			Grant:     EdgeReadGrant(t.Name),
			Resources: []cfn.String{t.Bucket.Arn(), t.Bucket.Objects()},
		},
		authz.ExactResources{
			Grant:     CleanupGrant(t.Name),
			Resources: []cfn.String{t.Bucket.Arn(), t.Bucket.Objects()},
		},
		authz.ExactActions{
			Grant:   InvalidateGrant(t.Name),
			Actions: []string{"cloudfront:CreateInvalidation"},
		},
		authz.SingleResource{
			Grant: InvalidateGrant(t.Name),
		},
	}
}

// Check evaluates the topology's grants against its least-privilege rules.
func (t *Topology) Check() error {
	return authz.NewChecker(true, t.Policies()...).Check(t.Grants())
}
