package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/schooldesk/portal/internal/models"
	apperrors "github.com/schooldesk/portal/pkg/errors"
)

// ErrAssetExists is returned when an object key is recorded twice.
var ErrAssetExists = errors.New("media asset already exists")

// MediaRepositoryInterface defines media ownership persistence.
type MediaRepositoryInterface interface {
	Create(ctx context.Context, asset *models.MediaAsset) error
	GetActive(ctx context.Context, key string) (*models.MediaAsset, error)
	MarkDeleted(ctx context.Context, key string, at time.Time) error
}

// MediaRepository stores which user owns each uploaded image so only the
// owner can obtain a delete signature.
type MediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create records a newly signed upload.
func (r *MediaRepository) Create(ctx context.Context, asset *models.MediaAsset) error {
	query := `
		INSERT INTO media_assets (object_key, owner_id, content_type, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, asset.Key, asset.OwnerID, asset.ContentType, asset.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAssetExists
		}
		return fmt.Errorf("failed to create media asset: %w", err)
	}

	return nil
}

// GetActive returns the asset for key unless it was deleted.
func (r *MediaRepository) GetActive(ctx context.Context, key string) (*models.MediaAsset, error) {
	query := `
		SELECT object_key, owner_id, content_type, created_at
		FROM media_assets
		WHERE object_key = $1 AND deleted_at IS NULL
	`

	var asset models.MediaAsset
	err := r.db.QueryRowContext(ctx, query, key).Scan(&asset.Key, &asset.OwnerID, &asset.ContentType, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError("media asset")
		}
		return nil, fmt.Errorf("failed to get media asset: %w", err)
	}

	return &asset, nil
}

// MarkDeleted soft-deletes the asset once a delete signature was issued.
func (r *MediaRepository) MarkDeleted(ctx context.Context, key string, at time.Time) error {
	query := `
		UPDATE media_assets
		SET deleted_at = $2
		WHERE object_key = $1 AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, key, at)
	if err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundError("media asset")
	}

	return nil
}
