package dataset

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// S3Options configures access to s3:// sources. Empty fields fall back to the
// default AWS credential and region chain.
type S3Options struct {
	Region          string
	Endpoint        string // optional; set for MinIO or other S3-compatible stores
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// IsS3 reports whether path names an object in S3.
func IsS3(path string) bool { return strings.HasPrefix(path, s3Scheme) }

func splitS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", uri)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opt S3Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opt.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opt.Region))
	}
	if opt.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opt.PathStyle {
			o.UsePathStyle = true
		}
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
	}), nil
}

func openS3(ctx context.Context, uri string, opt S3Options) (io.ReadCloser, error) {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, opt)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}
