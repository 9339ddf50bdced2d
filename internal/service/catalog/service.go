package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

const (
	priceListCacheKey = "price_list"
	priceListTTL      = 5 * time.Minute
)

// Service manages the clinic's price list. The active list is read on every
// public booking page load, so it is served from an in-process cache that
// write operations invalidate.
type Service struct {
	repo   repository.ServiceRepository
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewService(repo repository.ServiceRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache.New(priceListTTL, 10*time.Minute),
		logger: logger.With().Str("service", "catalog").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateServiceRequest) (*model.DentalService, error) {
	if !req.Price.IsPositive() {
		return nil, apperrors.Validation("service price must be positive")
	}

	now := time.Now()
	service := &model.DentalService{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		Active:          true,
	}

	if err := s.repo.Create(ctx, service); err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	s.cache.Delete(priceListCacheKey)
	return service, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.DentalService, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateServiceRequest) (*model.DentalService, error) {
	service, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		service.Name = *req.Name
	}
	if req.Description != nil {
		service.Description = *req.Description
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, apperrors.Validation("service price must be positive")
		}
		service.Price = *req.Price
	}
	if req.DurationMinutes != nil {
		service.DurationMinutes = *req.DurationMinutes
	}
	if req.Active != nil {
		service.Active = *req.Active
	}

	if err := s.repo.Update(ctx, service); err != nil {
		return nil, fmt.Errorf("failed to update service: %w", err)
	}

	s.cache.Delete(priceListCacheKey)
	return service, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(priceListCacheKey)
	return nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*model.DentalService, error) {
	return s.repo.List(ctx, activeOnly)
}

// PriceList returns the active services, cached.
func (s *Service) PriceList(ctx context.Context) ([]*model.DentalService, error) {
	if cached, found := s.cache.Get(priceListCacheKey); found {
		if services, ok := cached.([]*model.DentalService); ok {
			return services, nil
		}
	}

	services, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}

	s.cache.Set(priceListCacheKey, services, priceListTTL)
	return services, nil
}
