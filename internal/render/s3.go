package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"lending-snapshots/internal/snapshot"
)

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// S3Options configure the S3 uploader.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
	Timeout         time.Duration
}

// S3Uploader puts exported files into a bucket.
type S3Uploader struct {
	opts   S3Options
	client *s3.Client
}

// NewS3Uploader loads AWS credentials and builds an S3 client.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Uploader{opts: opts, client: client}, nil
}

// Upload puts a single object.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.opts.Bucket, key, err)
	}
	return nil
}

// Publisher renders through a FileRenderer and uploads every produced file under Prefix.
type Publisher struct {
	Inner    FileRenderer
	Uploader Uploader
	Prefix   string
	Logger   zerolog.Logger
}

// Render runs the inner renderer and then uploads its files.
func (p *Publisher) Render(ctx context.Context, tables snapshot.Tables) error {
	if err := p.Inner.Render(ctx, tables); err != nil {
		return err
	}
	for _, file := range p.Inner.Files() {
		key := path.Join(strings.Trim(p.Prefix, "/"), filepath.Base(file))
		if err := p.uploadFile(ctx, key, file); err != nil {
			return err
		}
		p.Logger.Info().Str("key", key).Msg("export uploaded")
	}
	return nil
}

// Files lists the local files of the inner renderer.
func (p *Publisher) Files() []string {
	return p.Inner.Files()
}

func (p *Publisher) uploadFile(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Uploader.Upload(ctx, key, f, contentType(file))
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

var (
	_ Uploader     = (*S3Uploader)(nil)
	_ FileRenderer = (*Publisher)(nil)
)
