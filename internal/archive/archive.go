// Package archive stores exports and downloaded backups, either in a local
// directory or in an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/rs/zerolog"
)

// DefaultRegion is used when an S3 target names no region.
const DefaultRegion = "us-east-1"

// Target stores named archives.
type Target interface {
	// Store writes r under name and returns where it ended up.
	Store(ctx context.Context, name string, r io.Reader) (string, error)
	String() string
}

// New returns the target described by cfg. Without a bucket the archive is
// written to cfg.Dir, or to fallbackDir when that is empty too.
func New(ctx context.Context, cfg config.ArchiveConfig, fallbackDir string, logger zerolog.Logger) (Target, error) {
	if !cfg.IsS3() {
		dir := cfg.Dir
		if dir == "" {
			dir = fallbackDir
		}
		return NewLocalTarget(dir)
	}
	return NewS3Target(ctx, cfg, logger)
}

// LocalTarget writes archives into a directory.
type LocalTarget struct {
	dir string
}

// NewLocalTarget creates a target for dir.
func NewLocalTarget(dir string) (*LocalTarget, error) {
	if dir == "" {
		return nil, errors.New("archive directory is required")
	}
	return &LocalTarget{dir: dir}, nil
}

// Store writes the archive atomically with 0600 permissions.
func (t *LocalTarget) Store(_ context.Context, name string, r io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(t.dir, 0700); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	dest := filepath.Join(t.dir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dest, nil
}

func (t *LocalTarget) String() string {
	return t.dir
}

// uploader is the part of manager.Uploader used here.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Target uploads archives to a bucket.
type S3Target struct {
	bucket   string
	prefix   string
	uploader uploader
	logger   zerolog.Logger
}

// ValidateS3 checks an S3 archive configuration.
func ValidateS3(cfg config.ArchiveConfig) error {
	if cfg.Bucket == "" {
		return errors.New("s3 archive: bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return errors.New("s3 archive: access_key_id and secret_access_key must be set together")
	}
	return nil
}

// NewS3Target builds an uploader for cfg. Without static credentials the
// default AWS credential chain is used.
func NewS3Target(ctx context.Context, cfg config.ArchiveConfig, logger zerolog.Logger) (*S3Target, error) {
	if err := ValidateS3(cfg); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" || cfg.UsePathStyle {
		endpoint := endpointURL(cfg.Endpoint)
		clientOpts = append(clientOpts, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
			o.UsePathStyle = cfg.UsePathStyle || cfg.Endpoint != ""
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)
	return newS3Target(cfg.Bucket, cfg.Prefix, manager.NewUploader(client), logger), nil
}

func newS3Target(bucket, prefix string, up uploader, logger zerolog.Logger) *S3Target {
	return &S3Target{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: up,
		logger:   logger.With().Str("component", "archive_s3").Logger(),
	}
}

// Store uploads the archive and returns its s3:// location.
func (t *S3Target) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	key := t.key(name)

	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", t.bucket, key)
	t.logger.Debug().Str("location", location).Msg("archive uploaded")
	return location, nil
}

func (t *S3Target) String() string {
	if t.prefix == "" {
		return "s3://" + t.bucket
	}
	return "s3://" + t.bucket + "/" + t.prefix
}

func (t *S3Target) key(name string) string {
	if t.prefix == "" {
		return name
	}
	return t.prefix + "/" + name
}

func endpointURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}
