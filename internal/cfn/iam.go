package cfn

const PolicyVersion = "2012-10-17"

// PolicyDocument is an IAM policy document. Resource properties carry it as
// untyped JSON; references inside render like any other String.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single IAM policy statement. Principal is only set on
// resource and trust policies.
type Statement struct {
	Sid       string              `json:"Sid,omitempty"`
	Effect    string              `json:"Effect"`
	Principal map[string][]String `json:"Principal,omitempty"`
	Action    []string            `json:"Action"`
	Resource  []String            `json:"Resource,omitempty"`
}

// NewPolicyDocument returns a document holding statements.
func NewPolicyDocument(statements ...Statement) PolicyDocument {
	return PolicyDocument{
		Version:   PolicyVersion,
		Statement: statements,
	}
}

// AssumeRolePolicy returns the trust policy letting service assume a role.
func AssumeRolePolicy(service string) PolicyDocument {
	return NewPolicyDocument(Statement{
		Effect:    "Allow",
		Principal: map[string][]String{"Service": {Literal(service)}},
		Action:    []string{"sts:AssumeRole"},
	})
}
