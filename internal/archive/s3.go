// internal/archive/s3.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrIncompleteConfig is returned when a bucket is configured without endpoint, region or credentials.
var ErrIncompleteConfig = errors.New("incomplete S3 archive configuration")

// Config holds the S3 connection settings.
type Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	KeyID     string
	AccessKey string
	Prefix    string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver copies downloaded index files into an S3 bucket under
// {prefix}/{repository}/{timestamp}/{file}.
type S3Archiver struct {
	uploader uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewS3Archiver(cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" ||
		strings.TrimSpace(cfg.Endpoint) == "" ||
		strings.TrimSpace(cfg.Region) == "" ||
		strings.TrimSpace(cfg.KeyID) == "" ||
		strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, ErrIncompleteConfig
	}
	client := s3.New(s3.Options{
		UsePathStyle: true,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.AccessKey, ""),
		),
	})
	return newS3Archiver(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(up uploader, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	return &S3Archiver{
		uploader: up,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// Key returns the object key a file of the given repository is stored under at t.
func (a *S3Archiver) Key(repository, file string, t time.Time) string {
	return path.Join(a.prefix, repository, t.UTC().Format("20060102T150405Z"), file)
}

// Archive uploads the file at localPath and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, repository, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open index for archiving: %w", err)
	}
	defer f.Close()

	key := a.Key(repository, path.Base(localPath), a.now())
	return key, a.upload(ctx, key, f)
}

func (a *S3Archiver) upload(ctx context.Context, key string, body io.Reader) error {
	result, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			return fmt.Errorf("multi-upload failure (upload_id: %s): %w", mu.UploadID(), mu)
		}
		return fmt.Errorf("upload failure: %w", err)
	}
	a.logger.Info("Archived index file", "bucket", a.bucket, "key", key, "location", result.Location)
	return nil
}
