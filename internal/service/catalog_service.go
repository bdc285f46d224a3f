package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/repository"
)

// CatalogService exposes read access to products.
type CatalogService struct {
	store repository.Queries
}

func NewCatalogService(store repository.Queries) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, domain.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}
