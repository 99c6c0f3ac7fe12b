package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used by BucketService.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// BucketService stages templates and empties buckets ahead of stack deletion.
type BucketService struct {
	client S3API
	region string
}

func NewBucketService(client S3API, region string) *BucketService {
	return &BucketService{
		client: client,
		region: region,
	}
}

// URL returns the virtual-hosted URL of an object.
func (b *BucketService) URL(bucket, key string) string {
	if b.region == "" || b.region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, b.region, key)
}

// Upload stores data under key and returns the object's URL.
func (b *BucketService) Upload(ctx context.Context, bucket, key string, data []byte) (url string, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Int("length", len(data)).
			Interface("error", err).
			Str("bucket", bucket).
			Str("key", key).
			Dur("elapsed", time.Since(begin)).
			Msg("Uploaded S3 object")
	}(time.Now())

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}

	return b.URL(bucket, key), nil
}

// Empty deletes every object of a bucket and returns the number deleted. A
// bucket that no longer exists is already empty.
func (b *BucketService) Empty(ctx context.Context, bucket string) (int, error) {
	logger := zerolog.Ctx(ctx)

	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noSuchBucket *types.NoSuchBucket
			if errors.As(err, &noSuchBucket) {
				return deleted, nil
			}
			return deleted, fmt.Errorf("failed to list objects of bucket %s: %w", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		result, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects of bucket %s: %w", bucket, err)
		}
		if len(result.Errors) > 0 {
			first := result.Errors[0]
			return deleted, fmt.Errorf("failed to delete %d objects of bucket %s: %s: %s",
				len(result.Errors), bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}
		deleted += len(ids)
	}

	logger.Info().
		Str("bucket", bucket).
		Int("deleted", deleted).
		Msg("Emptied bucket")
	return deleted, nil
}
