package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the part of *s3.Client the S3 source uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3 source.
type S3Config struct {
	Bucket string
	Prefix string // Key prefix, e.g. "builds/2024-06-01/"
	Region string

	// Endpoint overrides the service endpoint, for S3-compatible stores.
	Endpoint     string
	UsePathStyle bool

	// Static credentials. When AccessKeyID is empty requests are anonymous.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3 serves objects from a bucket prefix.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates an S3 source from cfg.
func NewS3(cfg S3Config) (*S3, error) {
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3WithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3Client builds the S3 client NewS3 uses. The asset builder uses it
// to upload with the same settings.
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("assets: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			Source:          "isomorph-config",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// NewS3WithClient creates an S3 source over an existing client.
func NewS3WithClient(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Open fetches the object prefix+name.
func (s *S3) Open(ctx context.Context, name string) (*Asset, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	key := s.prefix + clean
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, fmt.Errorf("assets: s3 get %s/%s: %w", s.bucket, key, err)
	}

	a := &Asset{
		Name:        clean,
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ModTime:     aws.ToTime(out.LastModified),
		ETag:        aws.ToString(out.ETag),
	}
	if a.ContentType == "" || a.ContentType == "binary/octet-stream" {
		a.ContentType = ContentType(clean)
	}
	return a, nil
}
