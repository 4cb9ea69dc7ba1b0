// Package export stores rtpdump files produced by save passes, locally or
// in an S3 bucket.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/metrics"
)

const s3Scheme = "s3://"

// Location is a bucket plus an optional key prefix.
type Location struct {
	Bucket string
	Prefix string // empty or ends with "/"
}

// IsS3URI reports whether s names an S3 location.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, s3Scheme)
}

// ParseLocation parses "s3://bucket[/prefix]".
func ParseLocation(uri string) (Location, error) {
	if !IsS3URI(uri) {
		return Location{}, fmt.Errorf("invalid S3 URI prefix: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, s3Scheme), "/", 2)
	if parts[0] == "" {
		return Location{}, fmt.Errorf("invalid S3 URI format: %s", uri)
	}
	loc := Location{Bucket: parts[0]}
	if len(parts) > 1 && parts[1] != "" {
		loc.Prefix = parts[1]
		if !strings.HasSuffix(loc.Prefix, "/") {
			loc.Prefix += "/"
		}
	}
	return loc, nil
}

// Key is the object key for name under the location.
func (l Location) Key(name string) string {
	return l.Prefix + name
}

// URI is the s3:// form of the object holding name.
func (l Location) URI(name string) string {
	return fmt.Sprintf("%s%s/%s", s3Scheme, l.Bucket, l.Key(name))
}

// putter is the part of the S3 client the uploader uses.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies local files into a bucket.
type Uploader struct {
	client      putter
	loc         Location
	deleteLocal bool
}

// NewUploader builds an uploader from the AWS default credential chain.
func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	loc, err := ParseLocation(cfg.URIPrefix)
	if err != nil {
		return nil, err
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Uploader{client: s3.NewFromConfig(awsCfg), loc: loc, deleteLocal: cfg.DeleteLocal}, nil
}

// Upload stores the file at localPath under its base name and returns the
// object URI. The local file is removed afterwards when configured to,
// whether or not the upload succeeded.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)
	uri, err := u.put(ctx, localPath, name)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
	} else {
		metrics.UploadsTotal.WithLabelValues("ok").Inc()
	}

	if u.deleteLocal {
		if rmErr := os.Remove(localPath); rmErr != nil {
			log.GetLogger().WithError(rmErr).Warnf("failed to delete local file %s", localPath)
		}
	}
	return uri, err
}

func (u *Uploader) put(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open local file %s: %w", localPath, err)
	}
	defer f.Close()

	bucket, key := u.loc.Bucket, u.loc.Key(name)
	contentType := "application/octet-stream"
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", name, err)
	}
	return u.loc.URI(name), nil
}

// Create opens the local file a save pass writes to. Relative names are
// placed in dir.
func Create(dir, name string) (*os.File, error) {
	path := name
	if dir != "" && !filepath.IsAbs(name) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create export dir %s: %w", dir, err)
		}
		path = filepath.Join(dir, name)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// nopCloser keeps stdout open after a save pass.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Stdout wraps w so callers can close it unconditionally.
func Stdout(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}
