package batch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3ClientAdapter satisfies s3PutObjectAPI over a real aws-sdk-go-v2
// client, the SDK's own documented construction pattern
// (config.LoadDefaultConfig + s3.NewFromConfig) — no pack file calls this
// SDK itself (see DESIGN.md), so this is built straight from the SDK's
// usage docs rather than grounded on an example.
type s3ClientAdapter struct {
	client *s3.Client
}

func (a *s3ClientAdapter) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("batch: s3 PutObject %s/%s: %w", bucket, key, err)
	}
	return nil
}

// NewS3SinkFromEnv loads the default AWS credential chain (environment,
// shared config, IMDS) and builds an S3Sink targeting bucket. Returns an
// error if no usable credentials/region are discoverable.
func NewS3SinkFromEnv(ctx context.Context, bucket string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("batch: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3Sink(bucket, &s3ClientAdapter{client: client}), nil
}
