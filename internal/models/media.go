package models

import "time"

// MediaOperation is the kind of signed request the image host should accept.
type MediaOperation string

const (
	MediaOperationUpload  MediaOperation = "upload"
	MediaOperationDestroy MediaOperation = "destroy"
)

// MediaSignatureRequest is the payload for POST /api/media/signature
// SECURITY: Max length validation to prevent resource exhaustion attacks
type MediaSignatureRequest struct {
	Operation   MediaOperation `json:"operation" binding:"required,oneof=upload destroy"`
	FileName    string         `json:"filename" binding:"required_if=Operation upload,max=255"`
	ContentType string         `json:"content_type" binding:"required_if=Operation upload,max=100"`
	Key         string         `json:"key" binding:"required_if=Operation destroy,max=512"`
}

// MediaSignature is a short-lived, pre-authorised request against the image host.
type MediaSignature struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Key       string            `json:"key"`
	PublicURL string            `json:"public_url,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// MediaAsset records who owns an uploaded image.
type MediaAsset struct {
	Key         string
	OwnerID     string
	ContentType string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// UploadedImage is returned to callers after a successful upload.
type UploadedImage struct {
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
	Size      int    `json:"size"`
	MIMEType  string `json:"mime_type"`
}
