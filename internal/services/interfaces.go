package services

import (
	"context"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/objectstore"
)

// MediaServiceInterface defines the media signing operations behind
// POST /api/media/signature
type MediaServiceInterface interface {
	Sign(ctx context.Context, session *models.AccessSession, req *models.MediaSignatureRequest) (*models.MediaSignature, error)
}

// MediaSigner pre-signs requests against the image bucket
type MediaSigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (*objectstore.SignedRequest, error)
	PresignDelete(ctx context.Context, key string) (*objectstore.SignedRequest, error)
	PublicURL(key string) string
}
