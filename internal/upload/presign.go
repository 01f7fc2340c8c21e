// Package upload hands out presigned S3 PUT URLs so report photos go
// straight from the browser to the bucket.
package upload

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/config"
)

// MaxFileSize is the largest photo accepted, 5 MiB.
const MaxFileSize = 5 << 20

// AllowedTypes maps accepted MIME types to their default extension.
var AllowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Request is a client's intent to upload one file.
type Request struct {
	UserID   uint64
	Filename string
	MimeType string
	Size     int64
}

// Result is what the client needs to PUT the file and reference it later.
type Result struct {
	PresignedURL string `json:"presignedUrl"`
	PublicURL    string `json:"publicUrl"`
	Key          string `json:"key"`
}

// PutPresigner is the slice of the S3 presign client used here.
type PutPresigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest mirrors the fields of the SDK's presigned request that
// callers use.
type PresignedRequest struct {
	URL string
}

// s3Presigner adapts *s3.PresignClient to PutPresigner.
type s3Presigner struct{ c *s3.PresignClient }

func (p s3Presigner) PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.c.PresignPutObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

// Presigner validates upload requests and signs PUT URLs.
type Presigner struct {
	bucket string
	region string
	ttl    time.Duration
	signer PutPresigner
}

// NewPresigner builds a presigner from static credentials. It returns nil
// when S3 is not configured; the upload route then reports an internal error.
func NewPresigner(cfg config.S3Config) *Presigner {
	if !cfg.Configured() {
		return nil
	}
	creds := aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "segregate-env",
		}, nil
	}))
	client := s3.New(s3.Options{Region: cfg.Region, Credentials: creds})
	return New(cfg.Bucket, cfg.Region, cfg.URLTTL, s3Presigner{c: s3.NewPresignClient(client)})
}

// New builds a presigner around any PutPresigner.
func New(bucket, region string, ttl time.Duration, signer PutPresigner) *Presigner {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Presigner{bucket: bucket, region: region, ttl: ttl, signer: signer}
}

// Presign validates req and returns a presigned PUT for a fresh key under
// the user's prefix.
func (p *Presigner) Presign(ctx context.Context, req Request) (Result, error) {
	ext, ok := AllowedTypes[req.MimeType]
	if !ok {
		return Result{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidFileType,
			"Unsupported file type. Allowed: image/jpeg, image/png, image/webp, image/gif")
	}
	if req.Size > MaxFileSize {
		return Result{}, apperr.New(apperr.KindValidation, apperr.CodeFileTooLarge,
			"File too large. Maximum size is 5 MB.")
	}
	if e := extension(req.Filename); e != "" {
		ext = e
	}

	key := fmt.Sprintf("reports/user-%d/%s.%s", req.UserID, newID(), ext)
	signed, err := p.signer.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(req.MimeType),
		ContentLength: aws.Int64(req.Size),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return Result{}, apperr.Internal(fmt.Errorf("upload: presign %s: %w", key, err))
	}
	return Result{PresignedURL: signed.URL, PublicURL: p.PublicURL(key), Key: key}, nil
}

// PublicURL is the virtual-hosted URL of key.
func (p *Presigner) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
}

// extension returns the lower-cased filename extension when it is short and
// alphanumeric, so a hostile filename cannot shape the object key.
func extension(filename string) string {
	e := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if e == "" || len(e) > 5 {
		return ""
	}
	for _, r := range e {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return e
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
