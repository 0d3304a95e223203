// Package media uploads and deletes profile images on the image host using
// signatures issued by the gateway.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/schooldesk/portal/internal/models"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/httpclient"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"github.com/schooldesk/portal/pkg/retry"
	"go.uber.org/zap"
)

// SignaturePath is the gateway endpoint issuing signed requests.
const SignaturePath = "/api/media/signature"

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxSize         = 5 << 20
	DefaultDeleteRetries   = 3
	DefaultDeleteBaseDelay = 500 * time.Millisecond
)

// ErrUploadTimeout is returned when an upload does not finish within the
// configured timeout.
var ErrUploadTimeout = fmt.Errorf("upload timed out: %w", apperrors.ErrTimeout)

// AllowedTypes are the MIME types accepted after content sniffing.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Options configures an Uploader.
type Options struct {
	// GatewayURL is where signatures are requested. The HTTP client must
	// carry the access cookie for it.
	GatewayURL      string
	HTTP            httpclient.Client
	Timeout         time.Duration
	MaxSize         int64
	DeleteRetries   int
	DeleteBaseDelay time.Duration
	Log             *zap.Logger
}

// Uploader talks to the gateway for signatures and to the image host for
// bytes.
type Uploader struct {
	gatewayURL string
	http       httpclient.Client
	timeout    time.Duration
	maxSize    int64
	deleteCfg  retry.Config
	log        *zap.Logger
}

// NewUploader validates opts and fills in defaults.
func NewUploader(opts Options) (*Uploader, error) {
	if opts.GatewayURL == "" {
		return nil, apperrors.ConfigurationError("media signature URL")
	}
	if opts.HTTP == nil {
		return nil, apperrors.ConfigurationError("media HTTP client")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.DeleteRetries < 0 {
		opts.DeleteRetries = 0
	}
	if opts.DeleteBaseDelay <= 0 {
		opts.DeleteBaseDelay = DefaultDeleteBaseDelay
	}

	deleteCfg := retry.MediaDeleteConfig(opts.DeleteRetries, opts.DeleteBaseDelay)
	deleteCfg.RetryableErrors = isTransient

	return &Uploader{
		gatewayURL: strings.TrimRight(opts.GatewayURL, "/"),
		http:       opts.HTTP,
		timeout:    opts.Timeout,
		maxSize:    opts.MaxSize,
		deleteCfg:  deleteCfg,
		log:        logger.OrNop(opts.Log),
	}, nil
}

// Validate sniffs data and returns its MIME type when it is an accepted
// image within the size limit.
func (u *Uploader) Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.InvalidInputError("file", "file is empty")
	}
	if int64(len(data)) > u.maxSize {
		return "", apperrors.InvalidInputError("file", fmt.Sprintf("file exceeds the %d byte limit", u.maxSize))
	}

	detected := mimetype.Detect(data)
	for _, allowed := range AllowedTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", apperrors.InvalidInputError("file", fmt.Sprintf("unsupported file type %s", detected.String()))
}

// Upload validates data, fetches an upload signature and sends the bytes.
// The whole exchange is bounded by the upload timeout.
func (u *Uploader) Upload(ctx context.Context, data []byte, filename string) (*models.UploadedImage, error) {
	contentType, err := u.Validate(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	uploadCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	image, err := u.upload(uploadCtx, data, filename, contentType)
	if err != nil && ctx.Err() == nil && errors.Is(uploadCtx.Err(), context.DeadlineExceeded) {
		err = ErrUploadTimeout
	}
	u.observe("upload", start, err)

	if err != nil {
		u.log.Warn("Image upload failed", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	u.log.Info("Image uploaded", zap.String("key", image.Key), zap.Int("size", image.Size))
	return image, nil
}

func (u *Uploader) upload(ctx context.Context, data []byte, filename, contentType string) (*models.UploadedImage, error) {
	sig, err := u.sign(ctx, models.MediaSignatureRequest{
		Operation:   models.MediaOperationUpload,
		FileName:    filename,
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	req, err := signedRequest(ctx, sig, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(data))

	if err := u.send(req, "upload"); err != nil {
		return nil, err
	}

	return &models.UploadedImage{
		Key:       sig.Key,
		PublicURL: sig.PublicURL,
		Size:      len(data),
		MIMEType:  contentType,
	}, nil
}

// Destroy deletes key from the image host. A key the gateway does not know
// is treated as already deleted. The delete is retried with exponential
// backoff.
func (u *Uploader) Destroy(ctx context.Context, key string) error {
	start := time.Now()

	sig, err := u.sign(ctx, models.MediaSignatureRequest{Operation: models.MediaOperationDestroy, Key: key})
	if errors.Is(err, apperrors.ErrNotFound) {
		u.log.Info("Image already gone", zap.String("key", key))
		u.observe("destroy", start, nil)
		return nil
	}
	if err != nil {
		u.observe("destroy", start, err)
		return err
	}

	err = retry.Do(ctx, u.log, u.deleteCfg, "media_destroy", func() error {
		req, err := signedRequest(ctx, sig, nil)
		if err != nil {
			return err
		}
		err = u.send(req, "destroy")
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	})
	u.observe("destroy", start, err)
	return err
}

// Replace removes oldKey then uploads data. A failed delete is logged and
// never prevents the upload; a failed upload is returned.
func (u *Uploader) Replace(ctx context.Context, oldKey string, data []byte, filename string) (*models.UploadedImage, error) {
	if oldKey != "" {
		if err := u.Destroy(ctx, oldKey); err != nil {
			u.log.Warn("Failed to delete previous image", zap.String("key", oldKey), zap.Error(err))
		}
	}
	return u.Upload(ctx, data, filename)
}

func (u *Uploader) sign(ctx context.Context, body models.MediaSignatureRequest) (*models.MediaSignature, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.gatewayURL+SignaturePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build signature request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, "media_signature", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, transportError(ctx, "media_signature", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("media_signature", resp.StatusCode, raw)
	}

	var sig models.MediaSignature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, apperrors.NetworkError("media_signature", fmt.Errorf("decode signature: %w", err))
	}
	if sig.URL == "" || sig.Method == "" {
		return nil, apperrors.NetworkError("media_signature", errors.New("signature without URL"))
	}
	return &sig, nil
}

func (u *Uploader) send(req *http.Request, operation string) error {
	resp, err := u.http.Do(req)
	if err != nil {
		return transportError(req.Context(), operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return statusError(operation, resp.StatusCode, raw)
}

func (u *Uploader) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := metrics.MeasureDuration(start)
	metrics.MediaRequestDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.MediaRequestTotal.WithLabelValues(operation, status).Inc()
	logger.LogAPICall(u.log, "image_host", operation, status, duration)
}

func isTransient(err error) bool {
	return errors.Is(err, apperrors.ErrNetwork) || errors.Is(err, apperrors.ErrTimeout)
}

func signedRequest(ctx context.Context, sig *models.MediaSignature, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, sig.Method, sig.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build signed request: %w", err)
	}
	for name, value := range sig.Headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

func transportError(ctx context.Context, operation string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.TimeoutError(operation)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", operation, context.Canceled)
	}
	return apperrors.NetworkError(operation, err)
}

func statusError(operation string, status int, raw []byte) error {
	message := strings.TrimSpace(string(raw))
	var body models.APIErrorBody
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			message = body.Error
		} else if body.Message != "" {
			message = body.Message
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch status {
	case http.StatusNotFound:
		return apperrors.NotFoundError(operation + " target")
	case http.StatusUnauthorized:
		return apperrors.UnauthorizedError(message)
	case http.StatusForbidden:
		return apperrors.AccessDeniedError(message)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperrors.InvalidInputError(operation, message)
	default:
		return apperrors.NetworkError(operation, fmt.Errorf("status %d: %s", status, message))
	}
}
