package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/backfill/backfill"
)

// ClientConfig describes how to reach the archive bucket.
type ClientConfig struct {
	// Region is required, even for S3-compatible services that ignore it.
	Region string

	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000"
	// for MinIO or "http://localhost:4566" for LocalStack.
	Endpoint string

	// UsePathStyle addresses the bucket in the path instead of the host name.
	UsePathStyle bool

	// Static credentials. When AccessKeyID is empty the default AWS
	// credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client for the archive.
//
// A missing region is reported as a *backfill.ConfigurationError so the
// archive resolver treats it like any other missing setting.
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, &backfill.ConfigurationError{Message: "no S3 region configured"}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}
