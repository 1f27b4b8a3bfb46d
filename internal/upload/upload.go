// Package upload stores packaged artifacts in an S3-compatible bucket.
package upload

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/rotisserie/eris"
)

// Options configures a Client.
type Options struct {
	Endpoint  string // empty for AWS
	Region    string
	Bucket    string
	Prefix    string // prepended to every key
	AccessKey string // falls back to the default credential chain when empty
	SecretKey string
}

// Client uploads files to a bucket.
type Client struct {
	client *s3.Client
	bucket string
	prefix string
}

// New returns a Client for opts.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, eris.New("no S3 bucket configured")
	}
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return nil, eris.New("S3 access key and secret key must be set together")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.AccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load S3 config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &Client{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// Key returns the object key of a file named name.
func (c *Client) Key(name string) string {
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

// UploadFile uploads the file at filePath under its base name and returns
// the object key.
func (c *Client) UploadFile(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	key := c.Key(filepath.Base(filePath))
	logging.From(ctx).Info().Str("bucket", c.bucket).Str("key", key).Int64("size", stat.Size()).Msg("uploading")
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return "", eris.Wrapf(err, "failed to upload %s to s3://%s/%s", filePath, c.bucket, key)
	}
	return key, nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	}
	return "application/octet-stream"
}
