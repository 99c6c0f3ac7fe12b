// Package synth renders front topologies as a CloudFormation template.
package synth

import (
	"fmt"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/cloudfront"
	"github.com/awslabs/goformation/v7/cloudformation/codebuild"
	"github.com/awslabs/goformation/v7/cloudformation/codecommit"
	"github.com/awslabs/goformation/v7/cloudformation/iam"
	"github.com/awslabs/goformation/v7/cloudformation/policies"
	"github.com/awslabs/goformation/v7/cloudformation/s3"
	"github.com/savaki/front-deployer/internal/authz"
	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/constants"
	"github.com/savaki/front-deployer/internal/errors"
	"github.com/savaki/front-deployer/internal/topology"
	"gopkg.in/yaml.v3"
)

// CloudFormation resource types emitted for a front.
const (
	TypeRepository     = "AWS::CodeCommit::Repository"
	TypeBucket         = "AWS::S3::Bucket"
	TypeBucketPolicy   = "AWS::S3::BucketPolicy"
	TypeAccessIdentity = "AWS::CloudFront::CloudFrontOriginAccessIdentity"
	TypeDistribution   = "AWS::CloudFront::Distribution"
	TypeRole           = "AWS::IAM::Role"
	TypePolicy         = "AWS::IAM::Policy"
	TypeProject        = "AWS::CodeBuild::Project"
	TypePipeline       = "AWS::CodePipeline::Pipeline"
	TypeEventRule      = "AWS::Events::Rule"
)

// Template renders one or more fronts into a single template. Logical ids are
// prefixed by front name; a front whose ids overlap another's is rejected
// with ErrFrontCollision.
func Template(fronts ...*topology.Topology) (*cfn.Template, error) {
	if len(fronts) == 0 {
		return nil, fmt.Errorf("no fronts to synthesize")
	}

	names := make([]string, 0, len(fronts))
	for _, f := range fronts {
		names = append(names, f.Name)
	}

	t := cfn.New(fmt.Sprintf("Static website pipeline for %s", strings.Join(names, ", ")))
	err := t.AddParameter(topology.BuildImageParameter, cloudformation.Parameter{
		Type:    "String",
		Default: constants.DefaultBuildImage,
	})
	if err != nil {
		return nil, err
	}

	owners := map[string]string{}
	for _, f := range fronts {
		if err := addFront(t, f, owners); err != nil {
			return nil, fmt.Errorf("failed to synthesize front %s: %w", f.Name, err)
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

type builder struct {
	t      *cfn.Template
	front  *topology.Topology
	owners map[string]string
	err    error
}

func (b *builder) add(logicalID string, r cloudformation.Resource) {
	if b.err != nil {
		return
	}
	if owner, ok := b.owners[logicalID]; ok && owner != b.front.Name {
		b.err = fmt.Errorf("%w: %s is defined by fronts %s and %s", errors.ErrFrontCollision, logicalID, owner, b.front.Name)
		return
	}
	if b.err = b.t.AddResource(logicalID, r); b.err == nil {
		b.owners[logicalID] = b.front.Name
	}
}

func addFront(t *cfn.Template, front *topology.Topology, owners map[string]string) error {
	b := &builder{t: t, front: front, owners: owners}

	b.repository()
	b.bucket()
	b.accessIdentity()
	b.bucketPolicy()
	b.distribution()
	b.artifactStore()
	for _, p := range front.Projects() {
		b.project(p)
	}
	b.pipeline()
	b.sourceTrigger()
	if b.err != nil {
		return b.err
	}

	return t.AddOutput(front.Output.LogicalID, cloudformation.Output{
		Value: front.Output.Value.Value(),
	})
}

func (b *builder) repository() {
	repo := b.front.Repository
	b.add(repo.LogicalID, &codecommit.Repository{
		RepositoryName:        repo.Name,
		RepositoryDescription: cloudformation.String(repo.Description),
	})
}

func removalPolicy(p topology.RemovalPolicy) policies.DeletionPolicy {
	if p == topology.RemovalDestroy {
		return cfn.PolicyDelete
	}
	return cfn.PolicyRetain
}

func (b *builder) bucket() {
	bucket := b.front.Bucket
	policy := removalPolicy(bucket.RemovalPolicy)
	b.add(bucket.LogicalID, &s3.Bucket{
		WebsiteConfiguration: &s3.Bucket_WebsiteConfiguration{
			IndexDocument: cloudformation.String(bucket.IndexDocument),
			ErrorDocument: cloudformation.String(bucket.ErrorDocument),
		},
		AWSCloudFormationDeletionPolicy:      policy,
		AWSCloudFormationUpdateReplacePolicy: cfn.ReplacePolicy(policy),
	})
}

func (b *builder) accessIdentity() {
	identity := b.front.Identity
	b.add(identity.LogicalID, &cloudfront.CloudFrontOriginAccessIdentity{
		CloudFrontOriginAccessIdentityConfig: &cloudfront.CloudFrontOriginAccessIdentity_CloudFrontOriginAccessIdentityConfig{
			Comment: identity.Comment,
		},
	})
}

func statements(grants []authz.Grant) []cfn.Statement {
	out := make([]cfn.Statement, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.Statement())
	}
	return out
}

func (b *builder) bucketPolicy() {
	bucket := b.front.Bucket
	b.add(bucket.PolicyID, &s3.BucketPolicy{
		Bucket:         bucket.Name().Value(),
		PolicyDocument: cfn.NewPolicyDocument(statements(bucket.Policy)...),
	})
}

func forwardedValues() *cloudfront.Distribution_ForwardedValues {
	return &cloudfront.Distribution_ForwardedValues{
		QueryString: false,
		Cookies:     &cloudfront.Distribution_Cookies{Forward: "none"},
	}
}

func defaultCacheBehavior(originID string, behavior topology.Behavior) *cloudfront.Distribution_DefaultCacheBehavior {
	return &cloudfront.Distribution_DefaultCacheBehavior{
		TargetOriginId:       originID,
		ViewerProtocolPolicy: behavior.ViewerProtocolPolicy,
		AllowedMethods:       behavior.AllowedMethods,
		CachedMethods:        []string{"GET", "HEAD"},
		Compress:             cloudformation.Bool(behavior.Compress),
		ForwardedValues:      forwardedValues(),
	}
}

func cacheBehavior(originID string, behavior topology.Behavior) cloudfront.Distribution_CacheBehavior {
	return cloudfront.Distribution_CacheBehavior{
		PathPattern:          behavior.PathPattern,
		TargetOriginId:       originID,
		ViewerProtocolPolicy: behavior.ViewerProtocolPolicy,
		AllowedMethods:       behavior.AllowedMethods,
		CachedMethods:        []string{"GET", "HEAD"},
		Compress:             cloudformation.Bool(behavior.Compress),
		ForwardedValues:      forwardedValues(),
	}
}

func (b *builder) distribution() {
	d := b.front.Distribution

	config := &cloudfront.Distribution_DistributionConfig{
		Enabled:           true,
		DefaultRootObject: cloudformation.String(d.DefaultRootObject),
		HttpVersion:       cloudformation.String("http2"),
		IPV6Enabled:       cloudformation.Bool(true),
		PriceClass:        cloudformation.String(d.PriceClass),
		ViewerCertificate: &cloudfront.Distribution_ViewerCertificate{
			CloudFrontDefaultCertificate: cloudformation.Bool(true),
		},
		Origins: []cloudfront.Distribution_Origin{
			{
				Id:         d.OriginID,
				DomainName: cfn.GetAtt(d.OriginBucket, "RegionalDomainName").Value(),
				S3OriginConfig: &cloudfront.Distribution_S3OriginConfig{
					OriginAccessIdentity: cfn.Join(cfn.Literal("origin-access-identity/cloudfront/"), cfn.Ref(d.OriginIdentity)).Ptr(),
				},
			},
		},
	}

	for _, behavior := range d.Behaviors {
		if behavior.IsDefault() {
			config.DefaultCacheBehavior = defaultCacheBehavior(d.OriginID, behavior)
			continue
		}
		config.CacheBehaviors = append(config.CacheBehaviors, cacheBehavior(d.OriginID, behavior))
	}

	b.add(d.LogicalID, &cloudfront.Distribution{
		DistributionConfig:         config,
		AWSCloudFormationDependsOn: d.DependsOn,
	})
}

// ArtifactStoreID is the logical id of the bucket holding pipeline artifacts.
func ArtifactStoreID(front *topology.Topology) string {
	return front.Pipeline.LogicalID + "Artifacts"
}

func (b *builder) artifactStore() {
	b.add(ArtifactStoreID(b.front), &s3.Bucket{
		BucketEncryption: &s3.Bucket_BucketEncryption{
			ServerSideEncryptionConfiguration: []s3.Bucket_ServerSideEncryptionRule{
				{
					ServerSideEncryptionByDefault: &s3.Bucket_ServerSideEncryptionByDefault{SSEAlgorithm: "AES256"},
				},
			},
		},
		PublicAccessBlockConfiguration: &s3.Bucket_PublicAccessBlockConfiguration{
			BlockPublicAcls:       cloudformation.Bool(true),
			BlockPublicPolicy:     cloudformation.Bool(true),
			IgnorePublicAcls:      cloudformation.Bool(true),
			RestrictPublicBuckets: cloudformation.Bool(true),
		},
		AWSCloudFormationDeletionPolicy:      cfn.PolicyDelete,
		AWSCloudFormationUpdateReplacePolicy: cfn.ReplacePolicy(cfn.PolicyDelete),
	})
}

// artifactAccess lets a role read and write pipeline artifacts.
func artifactAccess(front *topology.Topology) cfn.Statement {
	store := ArtifactStoreID(front)
	return cfn.Statement{
		Effect: "Allow",
		Action: []string{"s3:GetObject*", "s3:GetBucket*", "s3:List*", "s3:PutObject", "s3:DeleteObject*", "s3:Abort*"},
		Resource: []cfn.String{
			cfn.GetAtt(store, "Arn"),
			cfn.Join(cfn.GetAtt(store, "Arn"), cfn.Literal("/*")),
		},
	}
}

// buildLogs lets a project write to its own CodeBuild log group.
func buildLogs(project string) cfn.Statement {
	group := cfn.Join(
		cfn.Literal("arn:"), cfn.Partition, cfn.Literal(":logs:"), cfn.Region, cfn.Literal(":"), cfn.AccountID,
		cfn.Literal(":log-group:/aws/codebuild/"), cfn.Ref(project),
	)
	return cfn.Statement{
		Effect:   "Allow",
		Action:   []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
		Resource: []cfn.String{group, cfn.Join(group, cfn.Literal(":*"))},
	}
}

// role emits a service role and its inline policy, returning the policy's logical id.
func (b *builder) role(roleID, service string, stmts ...cfn.Statement) string {
	policyID := roleID + "Policy"
	b.add(roleID, &iam.Role{
		AssumeRolePolicyDocument: cfn.AssumeRolePolicy(service),
	})
	b.add(policyID, &iam.Policy{
		PolicyName:     policyID,
		Roles:          []string{cfn.Ref(roleID).Value()},
		PolicyDocument: cfn.NewPolicyDocument(stmts...),
	})
	return policyID
}

func buildSpec(spec topology.BuildSpec) (string, error) {
	if !spec.IsInline() {
		return spec.SourceFile, nil
	}

	type phase struct {
		Commands []string `yaml:"commands"`
	}
	doc := struct {
		Version string           `yaml:"version"`
		Phases  map[string]phase `yaml:"phases"`
	}{
		Version: "0.2",
		Phases:  map[string]phase{"build": {Commands: spec.Commands}},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render inline buildspec: %w", err)
	}
	return string(data), nil
}

func (b *builder) project(p topology.Project) {
	stmts := []cfn.Statement{buildLogs(p.LogicalID), artifactAccess(b.front)}
	stmts = append(stmts, statements(p.Grants)...)
	// The policy names the project's log group, so the project must not
	// depend on the policy.
	b.role(p.RoleID(), "codebuild.amazonaws.com", stmts...)

	spec, err := buildSpec(p.BuildSpec)
	if err != nil {
		b.err = err
		return
	}

	environment := &codebuild.Project_Environment{
		Type:           "LINUX_CONTAINER",
		ComputeType:    "BUILD_GENERAL1_SMALL",
		Image:          p.Image.Value(),
		PrivilegedMode: cloudformation.Bool(false),
	}
	for _, v := range p.Environment {
		environment.EnvironmentVariables = append(environment.EnvironmentVariables, codebuild.Project_EnvironmentVariable{
			Name:  v.Name,
			Type:  cloudformation.String("PLAINTEXT"),
			Value: v.Value.Value(),
		})
	}

	project := &codebuild.Project{
		ServiceRole: cfn.GetAtt(p.RoleID(), "Arn").Value(),
		Source: &codebuild.Project_Source{
			Type:      "CODEPIPELINE",
			BuildSpec: cloudformation.String(spec),
		},
		Artifacts:   &codebuild.Project_Artifacts{Type: "CODEPIPELINE"},
		Environment: environment,
	}
	if p.Name != "" {
		project.Name = cloudformation.String(p.Name)
	}

	b.add(p.LogicalID, project)
}
