package mirror

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 mirrors cache bodies into an S3 bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 mirror target, verifying bucket access up front
// so a misconfigured bucket fails at startup rather than on the first
// upload.
func NewS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("mirror s3: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("mirror s3: access bucket %s: %w", bucket, err)
	}

	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name
}

// Upload implements Target.
func (s *S3) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("mirror s3: put %s: %w", key, err)
	}
	return nil
}

// Clear implements Target, listing and batch-deleting every object
// under this mirror's prefix, 1000 per DeleteObjects batch.
func (s *S3) Clear(ctx context.Context) error {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, listInput)

	var objects []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("mirror s3: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
	}
	if len(objects) == 0 {
		return nil
	}

	for i := 0; i < len(objects); i += 1000 {
		end := i + 1000
		if end > len(objects) {
			end = len(objects)
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects[i:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("mirror s3: delete batch: %w", err)
		}
	}
	return nil
}

// Close implements Target. The SDK client needs no explicit teardown.
func (s *S3) Close() error { return nil }
