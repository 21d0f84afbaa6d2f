package persistence

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/molpadia/molparelay/internal/domain/entity"
)

type ArchiveOptions struct {
	Endpoint        string // S3 endpoint of the archive, e.g. https://<account>.r2.cloudflarestorage.com.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicDomain    string        // Domain serving the bucket publicly.
	Timeout         time.Duration // Deadline of a single put, zero for none.
}

// The durable archive of uploaded videos, backed by S3-compatible storage.
// Objects are never deleted by the archive.
type Archive struct {
	s3           s3iface.S3API
	bucket       string
	publicDomain string
	timeout      time.Duration
}

// Create the archive client. Credentials are checked by the storage on the
// first write, not here.
func NewArchive(opts ArchiveOptions) (*Archive, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Endpoint:         aws.String(opts.Endpoint),
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return NewArchiveWithClient(s3.New(sess), opts), nil
}

func NewArchiveWithClient(client s3iface.S3API, opts ArchiveOptions) *Archive {
	return &Archive{
		s3:           client,
		bucket:       opts.Bucket,
		publicDomain: opts.PublicDomain,
		timeout:      opts.Timeout,
	}
}

// Upload the entire staged file to the archive in a single put and return the
// public URL of the object. The staged file is left in place.
func (a *Archive) Archive(ctx context.Context, path, key, contentType string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", &entity.ArchiveError{Key: key, Err: err}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	_, err = a.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:          bytes.NewReader(body),
		Bucket:        aws.String(a.bucket),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Key:           aws.String(key),
	})
	if err != nil {
		return "", &entity.ArchiveError{Key: key, Err: err}
	}
	return a.PublicURL(key), nil
}

// Get the public URL of an archived object. The URL is built from the
// configured domain and is only valid if that domain serves the bucket.
func (a *Archive) PublicURL(key string) string {
	domain := strings.TrimRight(a.publicDomain, "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return domain + "/" + url.PathEscape(key)
}
