// Package topology assembles the resource graph of a front: a source
// repository, a website bucket behind an edge distribution, and a pipeline
// that builds the source, empties the bucket, deploys the build and purges
// the edge cache.
//
// New is a pure function. The returned Topology is built once and is not
// modified afterwards; every cross-resource reference is a logical id or a
// cfn.String resolved by the provider at deploy time.
package topology

import (
	"fmt"
	"regexp"

	"github.com/savaki/front-deployer/internal/authz"
	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/constants"
	"github.com/savaki/front-deployer/internal/errors"
)

// Logical id and pipeline name constraints leave room for the longest suffix.
var frontName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,63}$`)

// Props configures a front.
type Props struct {
	FrontName string
	Branch    string
	// BuildImage is the image of the build stage. Defaults to the BuildImage
	// template parameter.
	BuildImage cfn.String
	// AccountID scopes the invalidation grant. Empty defers to ${AWS::AccountId}.
	AccountID string
	// Partition of the account. Empty defers to ${AWS::Partition}.
	Partition  string
	PriceClass string
}

// Topology is the immutable resource graph of one front.
type Topology struct {
	Name         string
	Repository   Repository
	Bucket       Bucket
	Identity     AccessIdentity
	Distribution Distribution
	Build        Project
	PostBuild    Project
	Invalidate   Project
	Source       Artifact
	BuildOutput  Artifact
	Pipeline     Pipeline
	Output       Output
}

// Projects returns the build stages in definition order.
func (t *Topology) Projects() []Project {
	return []Project{t.Build, t.PostBuild, t.Invalidate}
}

// Grants returns every capability descriptor of the topology.
func (t *Topology) Grants() []authz.Grant {
	var grants []authz.Grant
	grants = append(grants, t.Bucket.Policy...)
	for _, p := range t.Projects() {
		grants = append(grants, p.Grants...)
	}
	return grants
}

// Names of the grants carried by a front.
func EdgeReadGrant(front string) string   { return front + "EdgeRead" }
func CleanupGrant(front string) string    { return front + "Cleanup" }
func InvalidateGrant(front string) string { return front + "Invalidate" }

// ValidateName reports whether name can be used as a front name.
func ValidateName(name string) error {
	if name == "" {
		return errors.ErrFrontNameRequired
	}
	if !frontName.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter and contain only letters and digits (max 64)", errors.ErrInvalidFrontName, name)
	}
	return nil
}

// New assembles the topology of the front named props.FrontName. Each step
// consumes the results of the previous ones; all names derive from the front
// name.
func New(props Props) (*Topology, error) {
	if err := ValidateName(props.FrontName); err != nil {
		return nil, err
	}

	var (
		name       = props.FrontName
		repository = newRepository(name)
		bucket     = newBucket(name)
		identity   = newAccessIdentity(name)
	)

	bucket.Policy = []authz.Grant{edgeReadGrant(name, bucket, identity)}

	var (
		distribution = newDistribution(name, props, bucket, identity)
		build        = newBuildProject(name, props)
		postBuild    = newPostBuildProject(name, bucket)
		invalidate   = newInvalidateProject(name, props, distribution)
		source       = Artifact{Name: "Artifact_Source_CodeCommit"}
		buildOutput  = Artifact{Name: "Artifact_Build_CodeBuild"}
	)

	pipeline := Pipeline{
		LogicalID: name + "Pipeline",
		Name:      name + "Pipeline",
		Branch:    valueOr(props.Branch, constants.DefaultBranch),
		Stages: []Stage{
			{
				Name: constants.StageSource,
				Actions: []Action{
					{
						Name:     "CodeCommit",
						Provider: ProviderCodeCommit,
						Target:   repository.LogicalID,
						Outputs:  []Artifact{source},
						RunOrder: 1,
					},
				},
			},
			{
				// Build and cleanup share run order 1 and may run concurrently.
				Name: constants.StageBuild,
				Actions: []Action{
					{
						Name:     "CodeBuild",
						Provider: ProviderCodeBuild,
						Target:   build.LogicalID,
						Inputs:   []Artifact{source},
						Outputs:  []Artifact{buildOutput},
						RunOrder: 1,
					},
					{
						Name:     "postCodeBuild",
						Provider: ProviderCodeBuild,
						Target:   postBuild.LogicalID,
						Inputs:   []Artifact{source},
						RunOrder: 1,
					},
				},
			},
			{
				// Invalidation must not run before the new content is deployed.
				Name: constants.StageDeploy,
				Actions: []Action{
					{
						Name:     "S3Deploy",
						Provider: ProviderS3,
						Target:   bucket.LogicalID,
						Inputs:   []Artifact{buildOutput},
						RunOrder: 1,
					},
					{
						Name:     "InvalidateCache",
						Provider: ProviderCodeBuild,
						Target:   invalidate.LogicalID,
						Inputs:   []Artifact{buildOutput},
						RunOrder: 2,
					},
				},
			},
		},
	}

	return &Topology{
		Name:         name,
		Repository:   repository,
		Bucket:       bucket,
		Identity:     identity,
		Distribution: distribution,
		Build:        build,
		PostBuild:    postBuild,
		Invalidate:   invalidate,
		Source:       source,
		BuildOutput:  buildOutput,
		Pipeline:     pipeline,
		Output: Output{
			LogicalID:   name + "DistributionDomainName",
			Description: name + " cloudfront distribution",
			Value:       distribution.DomainName(),
		},
	}, nil
}

func newRepository(name string) Repository {
	return Repository{
		LogicalID:   name + "Repo",
		Name:        name + "Repo",
		Description: name + "Repo",
	}
}

func newBucket(name string) Bucket {
	return Bucket{
		LogicalID:     name + "Bucket",
		IndexDocument: constants.WebsiteDocument,
		ErrorDocument: constants.WebsiteDocument,
		RemovalPolicy: RemovalDestroy,
		PolicyID:      name + "BucketPolicy",
	}
}

func newAccessIdentity(name string) AccessIdentity {
	return AccessIdentity{
		LogicalID: name + "WebsiteIdentity",
		Comment:   constants.IdentityComment,
	}
}

func edgeReadGrant(name string, bucket Bucket, identity AccessIdentity) authz.Grant {
	return authz.Grant{
		Name:       EdgeReadGrant(name),
		Holder:     identity.LogicalID,
		Attachment: authz.ResourcePolicy,
		Effect:     authz.Allow,
		Principals: []authz.Principal{
			{Type: authz.CanonicalUser, ID: identity.CanonicalUserID()},
		},
		Actions:   []string{"s3:GetObject"},
		Resources: []cfn.String{bucket.Arn(), bucket.Objects()},
	}
}

func newDistribution(name string, props Props, bucket Bucket, identity AccessIdentity) Distribution {
	return Distribution{
		LogicalID:         name + "Distribution",
		OriginID:          "origin1",
		OriginBucket:      bucket.LogicalID,
		OriginIdentity:    identity.LogicalID,
		DefaultRootObject: constants.WebsiteDocument,
		PriceClass:        valueOr(props.PriceClass, "PriceClass_100"),
		Behaviors: []Behavior{
			{
				ViewerProtocolPolicy: "redirect-to-https",
				AllowedMethods:       []string{"GET", "HEAD"},
				Compress:             true,
			},
		},
		DependsOn: []string{bucket.PolicyID},
	}
}

func newBuildProject(name string, props Props) Project {
	image := props.BuildImage
	if image.IsZero() {
		image = cfn.Ref(BuildImageParameter)
	}
	return Project{
		Kind:      ProjectBuild,
		LogicalID: name + "Build",
		Name:      name + "Build",
		Image:     image,
		BuildSpec: BuildSpec{SourceFile: constants.BuildSpecFile},
	}
}

func newPostBuildProject(name string, bucket Bucket) Project {
	logicalID := name + "PostBuild"
	return Project{
		Kind:      ProjectPostBuild,
		LogicalID: logicalID,
		Image:     cfn.Literal(constants.DefaultBuildImage),
		BuildSpec: BuildSpec{
			Commands: []string{"aws s3 rm s3://${" + constants.EnvBucketName + "} --recursive"},
		},
		Environment: []EnvVar{
			{Name: constants.EnvBucketName, Value: bucket.Name()},
		},
		// Full object access: the recursive delete needs list and delete.
		Grants: []authz.Grant{
			{
				Name:       CleanupGrant(name),
				Holder:     logicalID,
				Attachment: authz.RolePolicy,
				Effect:     authz.Allow,
				Actions:    []string{"s3:*"},
				Resources:  []cfn.String{bucket.Arn(), bucket.Objects()},
			},
		},
	}
}

func newInvalidateProject(name string, props Props, distribution Distribution) Project {
	logicalID := name + "InvalidateProject"
	return Project{
		Kind:      ProjectInvalidate,
		LogicalID: logicalID,
		Image:     cfn.Literal(constants.DefaultBuildImage),
		BuildSpec: BuildSpec{
			Commands: []string{
				"aws cloudfront create-invalidation --distribution-id ${" + constants.EnvCloudFrontID + `} --paths "/*"`,
			},
		},
		Environment: []EnvVar{
			{Name: constants.EnvCloudFrontID, Value: distribution.ID()},
		},
		Grants: []authz.Grant{
			{
				Name:       InvalidateGrant(name),
				Holder:     logicalID,
				Attachment: authz.RolePolicy,
				Effect:     authz.Allow,
				Actions:    []string{"cloudfront:CreateInvalidation"},
				Resources:  []cfn.String{DistributionArn(props.Partition, props.AccountID, distribution)},
			},
		},
	}
}

// DistributionArn returns the ARN of d: arn:<partition>:cloudfront::<account>:distribution/<id>.
// CloudFront is global, so the region segment is empty.
func DistributionArn(partition, accountID string, d Distribution) cfn.String {
	p := cfn.Partition
	if partition != "" {
		p = cfn.Literal(partition)
	}
	account := cfn.AccountID
	if accountID != "" {
		account = cfn.Literal(accountID)
	}
	return cfn.Join(
		cfn.Literal("arn:"), p,
		cfn.Literal(":cloudfront::"), account,
		cfn.Literal(":distribution/"), d.ID(),
	)
}

// BuildImageParameter is the template parameter naming the build image.
const BuildImageParameter = "BuildImage"

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
