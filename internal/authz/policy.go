package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/errors"
)

// Effect of a grant.
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

// PrincipalType identifies how a principal is named in a resource policy.
type PrincipalType string

const (
	CanonicalUser PrincipalType = "CanonicalUser"
	Service       PrincipalType = "Service"
)

// Principal is the identity a resource policy grants access to.
type Principal struct {
	Type PrincipalType
	ID   cfn.String
}

// Attachment says where a grant is materialized.
type Attachment string

const (
	// ResourcePolicy grants live in the policy of the resource they protect.
	ResourcePolicy Attachment = "resource-policy"
	// RolePolicy grants live in the policy of the holder's execution role.
	RolePolicy Attachment = "role-policy"
)

// Grant is a declarative capability descriptor: Holder may perform Actions
// on Resources. Grants are attached to the resource that holds them when the
// resource is defined, so least-privilege rules can be checked before
// anything is provisioned.
type Grant struct {
	Name       string
	Holder     string
	Attachment Attachment
	Effect     Effect
	Principals []Principal
	Actions    []string
	Resources  []cfn.String
}

// Statement renders the grant as an IAM policy statement.
func (g Grant) Statement() cfn.Statement {
	stmt := cfn.Statement{
		Sid:      g.Name,
		Effect:   string(g.Effect),
		Action:   slices.Clone(g.Actions),
		Resource: slices.Clone(g.Resources),
	}
	if len(g.Principals) > 0 {
		stmt.Principal = map[string][]cfn.String{}
		for _, p := range g.Principals {
			stmt.Principal[string(p.Type)] = append(stmt.Principal[string(p.Type)], p.ID)
		}
	}
	return stmt
}

// ResourceTexts returns the resources of g in Fn::Sub syntax.
func (g Grant) ResourceTexts() []string {
	texts := make([]string, 0, len(g.Resources))
	for _, r := range g.Resources {
		texts = append(texts, r.String())
	}
	return texts
}

// Policy is a least-privilege rule evaluated against every grant.
type Policy interface {
	// Authorize returns nil if the grant satisfies the rule.
	Authorize(grant Grant) error
	// Name returns a human-readable name for this policy.
	Name() string
}

// ExactActions requires the named grant to carry exactly Actions.
type ExactActions struct {
	Grant   string
	Actions []string
}

func (p ExactActions) Name() string {
	return "ExactActions(" + p.Grant + ")"
}

func (p ExactActions) Authorize(grant Grant) error {
	if grant.Name != p.Grant {
		return nil
	}
	if !sameSet(grant.Actions, p.Actions) {
		return fmt.Errorf("actions %v, want exactly %v", grant.Actions, p.Actions)
	}
	return nil
}

// ExactResources requires the named grant to be scoped to exactly Resources.
type ExactResources struct {
	Grant     string
	Resources []cfn.String
}

func (p ExactResources) Name() string {
	return "ExactResources(" + p.Grant + ")"
}

func (p ExactResources) Authorize(grant Grant) error {
	if grant.Name != p.Grant {
		return nil
	}
	want := make([]string, 0, len(p.Resources))
	for _, r := range p.Resources {
		want = append(want, r.String())
	}
	if got := grant.ResourceTexts(); !sameSet(got, want) {
		return fmt.Errorf("resources %v, want exactly %v", got, want)
	}
	return nil
}

// SingleResource requires the named grant to target one resource without
// wildcards.
type SingleResource struct {
	Grant string
}

func (p SingleResource) Name() string {
	return "SingleResource(" + p.Grant + ")"
}

func (p SingleResource) Authorize(grant Grant) error {
	if grant.Name != p.Grant {
		return nil
	}
	if len(grant.Resources) != 1 {
		return fmt.Errorf("grant targets %d resources, want 1", len(grant.Resources))
	}
	if text := grant.Resources[0].String(); strings.Contains(text, "*") {
		return fmt.Errorf("resource %s contains a wildcard", text)
	}
	return nil
}

// NoGlobalWildcard rejects grants on "*" and grants of every action of
// every service.
type NoGlobalWildcard struct{}

func (NoGlobalWildcard) Name() string {
	return "NoGlobalWildcard"
}

func (NoGlobalWildcard) Authorize(grant Grant) error {
	if len(grant.Resources) == 0 {
		return fmt.Errorf("grant has no resources")
	}
	for _, r := range grant.Resources {
		if r.String() == "*" {
			return fmt.Errorf("grant targets every resource")
		}
	}
	if slices.Contains(grant.Actions, "*") {
		return fmt.Errorf("grant allows every action")
	}
	return nil
}

// Checker manages a collection of least-privilege policies.
type Checker struct {
	policies []Policy
	enabled  bool
}

// NewChecker creates a new checker with the given policies.
func NewChecker(enabled bool, policies ...Policy) *Checker {
	return &Checker{
		policies: policies,
		enabled:  enabled,
	}
}

// Check runs all policies against all grants and returns the first violation.
func (c *Checker) Check(grants []Grant) error {
	if c == nil || !c.enabled {
		return nil
	}

	for _, grant := range grants {
		for _, policy := range c.policies {
			if err := policy.Authorize(grant); err != nil {
				return fmt.Errorf("%w: policy %s rejected grant %s: %w", errors.ErrPolicyViolation, policy.Name(), grant.Name, err)
			}
		}
	}
	return nil
}

func sameSet(got, want []string) bool {
	a := slices.Compact(slices.Sorted(slices.Values(got)))
	b := slices.Compact(slices.Sorted(slices.Values(want)))
	return len(got) == len(a) && slices.Equal(a, b)
}
