package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/front-deployer/internal/services"
)

func ProvideAWSConfig(ctx context.Context, region Region) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(string(region)))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideCloudFormation(config aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideSTSClient(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideStackService(client *cloudformation.Client) *services.StackService {
	return services.NewStackService(client)
}

func ProvideBucketService(client *s3.Client, config aws.Config) *services.BucketService {
	return services.NewBucketService(client, config.Region)
}

func ProvideAccountService(client *sts.Client) *services.AccountService {
	return services.NewAccountService(client)
}
