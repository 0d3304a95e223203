package services_test

import (
	"context"
	"time"

	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/objectstore"
	"github.com/stretchr/testify/mock"
)

// MockMediaRepository is a mock implementation of MediaRepositoryInterface
type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) Create(ctx context.Context, asset *models.MediaAsset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockMediaRepository) GetActive(ctx context.Context, key string) (*models.MediaAsset, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MediaAsset), args.Error(1)
}

func (m *MockMediaRepository) MarkDeleted(ctx context.Context, key string, at time.Time) error {
	args := m.Called(ctx, key, at)
	return args.Error(0)
}

// MockMediaSigner is a mock implementation of MediaSigner
type MockMediaSigner struct {
	mock.Mock
}

func (m *MockMediaSigner) PresignUpload(ctx context.Context, key, contentType string) (*objectstore.SignedRequest, error) {
	args := m.Called(ctx, key, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*objectstore.SignedRequest), args.Error(1)
}

func (m *MockMediaSigner) PresignDelete(ctx context.Context, key string) (*objectstore.SignedRequest, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*objectstore.SignedRequest), args.Error(1)
}

func (m *MockMediaSigner) PublicURL(key string) string {
	args := m.Called(key)
	return args.String(0)
}
