package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/schaermu/deploystatic/internal/config"
)

// ProxyEndpoint is the local S3 emulator used when proxy mode is enabled
const ProxyEndpoint = "http://localhost:4567"

const defaultRegion = "us-east-1"

// s3API is the subset of the S3 client used by S3
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Options configures an S3 backend
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	Proxy           bool
	CustomDomain    string
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores files as objects in a bucket
type S3 struct {
	client s3API
	opts   S3Options
	logger *slog.Logger
}

func s3OptionsFromConfig(cfg *config.Config, bucket string) S3Options {
	return S3Options{
		Bucket:          bucket,
		Region:          cfg.Storage.S3.Region,
		Endpoint:        cfg.Storage.S3.Endpoint,
		Proxy:           cfg.Storage.S3.Proxy,
		AccessKeyID:     cfg.Storage.S3.AccessKeyID,
		SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
	}
}

// NewS3 creates an S3 backend using the default AWS credential chain unless
// static keys are given
func NewS3(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	switch {
	case opts.AccessKeyID != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	case opts.Proxy:
		// The local emulator accepts any signature
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("proxy", "proxy", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	endpoint := opts.Endpoint
	if opts.Proxy {
		endpoint = ProxyEndpoint
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3WithClient(client, opts, logger), nil
}

func newS3WithClient(client s3API, opts S3Options, logger *slog.Logger) *S3 {
	return &S3{client: client, opts: opts, logger: logger}
}

// Save uploads content as the object name, replacing any existing object
func (s *S3) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	key, err := cleanName(name)
	if err != nil {
		return "", err
	}

	// PutObject needs a seekable body to compute the payload hash
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}

	s.logger.Debug("uploading object", "bucket", s.opts.Bucket, "key", key, "bytes", len(data))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.opts.Bucket, key, err)
	}

	return key, nil
}

// URL returns the public URL of name, preferring the CDN domain
func (s *S3) URL(name string) string {
	key := strings.TrimPrefix(name, "/")

	switch {
	case s.opts.CustomDomain != "":
		return "https://" + strings.TrimSuffix(s.opts.CustomDomain, "/") + "/" + key
	case s.opts.Proxy:
		return ProxyEndpoint + "/" + s.opts.Bucket + "/" + key
	case s.opts.Endpoint != "":
		return strings.TrimSuffix(s.opts.Endpoint, "/") + "/" + s.opts.Bucket + "/" + key
	default:
		return "https://" + s.opts.Bucket + ".s3.amazonaws.com/" + key
	}
}

// List returns the keys in the bucket starting with prefix
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.opts.Bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.opts.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func contentType(key string) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
