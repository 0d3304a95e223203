package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/repository"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"github.com/schooldesk/portal/pkg/objectstore"
	"github.com/schooldesk/portal/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProfileImagePrefix is the key prefix of every profile image.
const ProfileImagePrefix = "profiles/"

var (
	ErrMediaNotFound = fmt.Errorf("media asset %w", apperrors.ErrNotFound)
	ErrMediaNotOwned = apperrors.AccessDeniedError("media asset belongs to another user")
)

// MediaService issues upload and delete signatures for profile images and
// records who owns each object.
type MediaService struct {
	repo   repository.MediaRepositoryInterface
	signer MediaSigner
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewMediaService creates a new MediaService
func NewMediaService(repo repository.MediaRepositoryInterface, signer MediaSigner, log *zap.Logger) *MediaService {
	return &MediaService{
		repo:   repo,
		signer: signer,
		log:    logger.OrNop(log),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Sign issues the signature requested by req on behalf of session.
func (s *MediaService) Sign(ctx context.Context, session *models.AccessSession, req *models.MediaSignatureRequest) (*models.MediaSignature, error) {
	ctx, span := tracing.StartSpan(ctx, "media.sign",
		attribute.String("media.operation", string(req.Operation)))
	defer span.End()

	var (
		sig *models.MediaSignature
		err error
	)
	switch req.Operation {
	case models.MediaOperationUpload:
		sig, err = s.signUpload(ctx, session, req)
	case models.MediaOperationDestroy:
		sig, err = s.signDestroy(ctx, session, req.Key)
	default:
		err = apperrors.InvalidInputError("operation", fmt.Sprintf("unknown operation %q", req.Operation))
	}

	status := "success"
	if err != nil {
		status = signStatus(err)
		span.RecordError(err)
	}
	metrics.MediaSignatures.WithLabelValues(string(req.Operation), status).Inc()

	return sig, err
}

func (s *MediaService) signUpload(ctx context.Context, session *models.AccessSession, req *models.MediaSignatureRequest) (*models.MediaSignature, error) {
	if err := objectstore.ValidateImageType(req.ContentType); err != nil {
		return nil, err
	}

	key := ProfileImagePrefix + url.PathEscape(session.UserID) + "/" + s.newID() + objectstore.ExtensionFor(req.ContentType)

	signed, err := s.signer.PresignUpload(ctx, key, req.ContentType)
	if err != nil {
		s.log.Error("Failed to presign upload", zap.String("user_id", session.UserID), zap.Error(err))
		return nil, err
	}

	asset := &models.MediaAsset{
		Key:         key,
		OwnerID:     session.UserID,
		ContentType: req.ContentType,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, asset); err != nil {
		s.log.Error("Failed to record media asset", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	s.log.Info("Upload signature issued",
		zap.String("user_id", session.UserID),
		zap.String("key", key),
		zap.String("filename", req.FileName),
		zap.String("content_type", req.ContentType))

	return toSignature(signed, key, s.signer.PublicURL(key)), nil
}

func (s *MediaService) signDestroy(ctx context.Context, session *models.AccessSession, key string) (*models.MediaSignature, error) {
	asset, err := s.repo.GetActive(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}

	if asset.OwnerID != session.UserID {
		s.log.Warn("Delete signature refused for foreign asset",
			zap.String("user_id", session.UserID),
			zap.String("key", key))
		return nil, ErrMediaNotOwned
	}

	signed, err := s.signer.PresignDelete(ctx, key)
	if err != nil {
		s.log.Error("Failed to presign delete", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	if err := s.repo.MarkDeleted(ctx, key, s.now().UTC()); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	s.log.Info("Delete signature issued",
		zap.String("user_id", session.UserID),
		zap.String("key", key))

	return toSignature(signed, key, ""), nil
}

func toSignature(signed *objectstore.SignedRequest, key, publicURL string) *models.MediaSignature {
	headers := make(map[string]string, len(signed.Headers))
	for name := range signed.Headers {
		headers[name] = signed.Headers.Get(name)
	}

	return &models.MediaSignature{
		Method:    signed.Method,
		URL:       signed.URL,
		Headers:   headers,
		Key:       key,
		PublicURL: publicURL,
		ExpiresAt: signed.ExpiresAt,
	}
}

func signStatus(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrAccessDenied):
		return "forbidden"
	default:
		return "error"
	}
}
