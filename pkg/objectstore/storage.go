// Package objectstore issues pre-signed requests against the S3-compatible
// bucket that hosts profile images. The gateway never proxies image bytes:
// clients PUT and DELETE directly using the signed URLs.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultSignatureTTL applies when Config.SignatureTTL is not set.
const DefaultSignatureTTL = 10 * time.Minute

// ImageExtensions maps the accepted image content types to the file
// extension used in object keys.
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Config points at the bucket.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Endpoint        string
	Region          string
	// PublicBaseURL serves uploaded objects. Defaults to <endpoint>/<bucket>.
	PublicBaseURL string
	SignatureTTL  time.Duration
}

// SignedRequest is a request the bucket will accept until ExpiresAt.
type SignedRequest struct {
	Method    string
	URL       string
	Headers   http.Header
	ExpiresAt time.Time
}

// StorageClient signs object requests.
type StorageClient struct {
	presigner     *s3.PresignClient
	bucketName    string
	publicBaseURL string
	ttl           time.Duration
}

// NewStorageClient creates a signer for cfg. Missing bucket or credentials is
// a configuration error.
func NewStorageClient(cfg Config, log *zap.Logger) (*StorageClient, error) {
	log = logger.OrNop(log)

	switch {
	case cfg.BucketName == "":
		return nil, apperrors.ConfigurationError("MEDIA_STORAGE_BUCKET_NAME")
	case cfg.AccessKeyID == "" || cfg.SecretAccessKey == "":
		return nil, apperrors.ConfigurationError("MEDIA_STORAGE_ACCESS_KEY_ID and MEDIA_STORAGE_SECRET_ACCESS_KEY")
	}

	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = DefaultSignatureTTL
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token not needed
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		// S3-compatible hosts rarely support virtual-hosted buckets
		opts.UsePathStyle = true
	}

	publicBase := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		publicBase = strings.TrimSuffix(endpoint, "/") + "/" + cfg.BucketName
	}

	log.Info("Media storage signer initialized",
		zap.String("bucket", cfg.BucketName),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("region", cfg.Region),
		zap.Duration("signature_ttl", cfg.SignatureTTL),
	)

	return &StorageClient{
		presigner:     s3.NewPresignClient(s3.New(opts)),
		bucketName:    cfg.BucketName,
		publicBaseURL: publicBase,
		ttl:           cfg.SignatureTTL,
	}, nil
}

// PresignUpload signs a PUT of key with the given content type. The client
// must send the returned headers unchanged.
func (s *StorageClient) PresignUpload(ctx context.Context, key, contentType string) (*SignedRequest, error) {
	if err := ValidateImageType(contentType); err != nil {
		return nil, err
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return s.signed(req.Method, req.URL, req.SignedHeader), nil
}

// PresignDelete signs a DELETE of key.
func (s *StorageClient) PresignDelete(ctx context.Context, key string) (*SignedRequest, error) {
	req, err := s.presigner.PresignDeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign delete: %w", err)
	}

	return s.signed(req.Method, req.URL, req.SignedHeader), nil
}

// PublicURL is where an uploaded object can be fetched.
func (s *StorageClient) PublicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

func (s *StorageClient) signed(method, url string, signedHeader http.Header) *SignedRequest {
	headers := http.Header{}
	for name, values := range signedHeader {
		// Host is set by the HTTP client from the URL
		if strings.EqualFold(name, "Host") {
			continue
		}
		headers[http.CanonicalHeaderKey(name)] = values
	}

	return &SignedRequest{
		Method:    method,
		URL:       url,
		Headers:   headers,
		ExpiresAt: time.Now().Add(s.ttl),
	}
}

// ValidateImageType validates the image content type
func ValidateImageType(contentType string) error {
	if _, ok := ImageExtensions[strings.ToLower(contentType)]; !ok {
		return apperrors.InvalidInputError("content_type", fmt.Sprintf("%s is not allowed, use jpeg, png, webp or gif", contentType))
	}
	return nil
}

// ExtensionFor returns the object key extension for contentType.
func ExtensionFor(contentType string) string {
	return ImageExtensions[strings.ToLower(contentType)]
}
