package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CatalogService struct {
	uow    port.UnitOfWork
	cache  port.CacheRepository
	logger *zap.Logger
}

func NewCatalogService(uow port.UnitOfWork, cache port.CacheRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{uow: uow, cache: cache, logger: logger}
}

func (s *CatalogService) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Version = 0
	if err := s.uow.Products().Create(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.uow.Products().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if p == nil {
		return nil, &domain.NotFoundError{Entity: "product", ID: id}
	}
	return p, nil
}

// UpdateProduct saves p if p.Version still matches the stored version,
// otherwise it fails with domain.ErrConflict.
func (s *CatalogService) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.uow.Products().Update(ctx, p)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.uow.Products().Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateImage(ctx, id)
	return nil
}

func (s *CatalogService) Images(ctx context.Context, productID string) ([]domain.ProductImage, error) {
	return s.uow.Images().ListByProduct(ctx, productID)
}

// SetImages replaces the image set of a product. At most one image stays
// primary.
func (s *CatalogService) SetImages(ctx context.Context, productID string, images []domain.ProductImage) ([]domain.ProductImage, error) {
	var stored []domain.ProductImage
	err := s.uow.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		p, err := repos.Products().FindByID(ctx, productID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if p == nil {
			return &domain.NotFoundError{Entity: "product", ID: productID}
		}
		if err := repos.Images().ReplaceForProduct(ctx, productID, images); err != nil {
			return fmt.Errorf("replace images: %w", err)
		}
		stored, err = repos.Images().ListByProduct(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.refreshImage(ctx, productID, domain.PrimaryImageURL(stored))
	return stored, nil
}

// refreshImage publishes the committed primary URL. If the write fails the
// entry is dropped instead, so readers fall back to the image repository.
func (s *CatalogService) refreshImage(ctx context.Context, productID, url string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetImageURL(ctx, productID, url); err != nil {
		s.logger.Warn("image cache refresh failed", zap.String("product_id", productID), zap.Error(err))
		s.invalidateImage(ctx, productID)
	}
}

func (s *CatalogService) invalidateImage(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateImageURL(ctx, productID); err != nil {
		s.logger.Warn("image cache invalidation failed", zap.String("product_id", productID), zap.Error(err))
	}
}
