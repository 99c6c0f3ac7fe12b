package topology

import (
	"github.com/savaki/front-deployer/internal/authz"
	"github.com/savaki/front-deployer/internal/cfn"
)

// RemovalPolicy governs whether a resource's data survives stack teardown.
type RemovalPolicy string

const (
	RemovalDestroy RemovalPolicy = "destroy"
	RemovalRetain  RemovalPolicy = "retain"
)

// Repository is the version-controlled source store.
type Repository struct {
	LogicalID   string
	Name        string
	Description string
}

// Bucket is the website-mode artifact bucket the distribution serves from.
type Bucket struct {
	LogicalID     string
	IndexDocument string
	ErrorDocument string
	RemovalPolicy RemovalPolicy
	// PolicyID is the logical id of the bucket's resource policy.
	PolicyID string
	// Policy holds the grants attached to the bucket's resource policy.
	Policy []authz.Grant
}

// Arn returns the bucket's ARN.
func (b Bucket) Arn() cfn.String {
	return cfn.GetAtt(b.LogicalID, "Arn")
}

// Objects returns the ARN pattern matching every object of the bucket.
func (b Bucket) Objects() cfn.String {
	return cfn.Join(b.Arn(), cfn.Literal("/*"))
}

// Name returns the name assigned to the bucket by the provider.
func (b Bucket) Name() cfn.String {
	return cfn.Ref(b.LogicalID)
}

// AccessIdentity is the opaque principal the distribution reads the bucket as.
type AccessIdentity struct {
	LogicalID string
	Comment   string
}

// CanonicalUserID returns the S3 canonical user id of the identity.
func (i AccessIdentity) CanonicalUserID() cfn.String {
	return cfn.GetAtt(i.LogicalID, "S3CanonicalUserId")
}

// Behavior routes requests matching PathPattern to an origin. An empty
// PathPattern marks the default catch-all behavior.
type Behavior struct {
	PathPattern          string
	ViewerProtocolPolicy string
	AllowedMethods       []string
	Compress             bool
}

// IsDefault reports whether b is the catch-all behavior.
func (b Behavior) IsDefault() bool {
	return b.PathPattern == ""
}

// Distribution is the edge cache fronting the bucket.
type Distribution struct {
	LogicalID         string
	OriginID          string
	OriginBucket      string
	OriginIdentity    string
	DefaultRootObject string
	PriceClass        string
	Behaviors         []Behavior
	// DependsOn lists resources that must exist before the distribution,
	// most importantly the bucket policy admitting the origin identity.
	DependsOn []string
}

// ID returns the id assigned to the distribution by the provider.
func (d Distribution) ID() cfn.String {
	return cfn.Ref(d.LogicalID)
}

// DomainName returns the public domain name of the distribution.
func (d Distribution) DomainName() cfn.String {
	return cfn.GetAtt(d.LogicalID, "DomainName")
}

// ProjectKind distinguishes the three CodeBuild stages.
type ProjectKind string

const (
	ProjectBuild      ProjectKind = "build"
	ProjectPostBuild  ProjectKind = "post-build"
	ProjectInvalidate ProjectKind = "invalidate"
)

// BuildSpec is either a file read from the source artifact or inline commands.
type BuildSpec struct {
	SourceFile string
	Commands   []string
}

// IsInline reports whether the spec is carried inline rather than read from source.
func (s BuildSpec) IsInline() bool {
	return s.SourceFile == ""
}

// EnvVar is a plaintext environment variable passed to a build stage.
type EnvVar struct {
	Name  string
	Value cfn.String
}

// Project is a CodeBuild stage configuration. Its grants are attached to the
// project's execution role.
type Project struct {
	Kind      ProjectKind
	LogicalID string
	// Name is the explicit project name; empty lets the provider assign one.
	Name        string
	Image       cfn.String
	BuildSpec   BuildSpec
	Environment []EnvVar
	Grants      []authz.Grant
}

// RoleID returns the logical id of the project's execution role.
func (p Project) RoleID() string {
	return p.LogicalID + "Role"
}

// Artifact is a hand-off slot between pipeline actions.
type Artifact struct {
	Name string
}

// ActionProvider is the service executing an action.
type ActionProvider string

const (
	ProviderCodeCommit ActionProvider = "CodeCommit"
	ProviderCodeBuild  ActionProvider = "CodeBuild"
	ProviderS3         ActionProvider = "S3"
)

// Category returns the CodePipeline action category of the provider.
func (p ActionProvider) Category() string {
	switch p {
	case ProviderCodeCommit:
		return "Source"
	case ProviderS3:
		return "Deploy"
	default:
		return "Build"
	}
}

// Action is one step of a pipeline stage. Actions of a stage sharing a
// RunOrder may run concurrently; higher run orders wait for lower ones.
type Action struct {
	Name     string
	Provider ActionProvider
	// Target is the logical id of the repository, project or bucket acted on.
	Target   string
	Inputs   []Artifact
	Outputs  []Artifact
	RunOrder int
}

// Stage is a named, ordered set of actions.
type Stage struct {
	Name    string
	Actions []Action
}

// Pipeline sequences the stages of a front.
type Pipeline struct {
	LogicalID string
	Name      string
	Branch    string
	Stages    []Stage
}

// Stage returns the stage called name.
func (p Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Output is a value exposed once the stack is realized.
type Output struct {
	LogicalID   string
	Description string
	Value       cfn.String
}
