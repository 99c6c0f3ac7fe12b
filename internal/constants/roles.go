package constants

// Naming conventions shared by the topology builder, the synthesizer and the CLI.
const (
	// BuildSpecFile is the build specification read from the root of the source
	// artifact by the build stage.
	BuildSpecFile = "buildspec.yml"

	// WebsiteDocument serves as both the index and the error document of the
	// website bucket so client-side routes resolve to the application shell.
	WebsiteDocument = "index.html"

	// DefaultBranch is the repository branch the pipeline tracks.
	DefaultBranch = "master"

	// DefaultBuildImage is the CodeBuild image used when none is configured.
	DefaultBuildImage = "aws/codebuild/standard:5.0"

	// DefaultPartition is used when the deploying account's partition is unknown.
	DefaultPartition = "aws"

	// DefaultFrontName is the front deployed when no fronts file is given.
	DefaultFrontName = "Front"

	// IdentityComment is the comment attached to every origin access identity.
	IdentityComment = "website-identity"
)

// Environment variables injected into the CodeBuild stages.
const (
	EnvBucketName   = "BUCKET_NAME"
	EnvCloudFrontID = "CLOUDFRONT_ID"
)

// Pipeline stage names, in execution order.
const (
	StageSource = "Source"
	StageBuild  = "Build"
	StageDeploy = "Deploy"
)

// ManagedByTag is the tag key stamped on every stack this tool deploys.
const (
	ManagedByTag   = "ManagedBy"
	ManagedByValue = "front-deployer"
)
