package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/pricing"
	"github.com/josh-kwaku/pointstore/internal/repository"
)

type itemRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	List(ctx context.Context, f repository.ItemFilter) ([]domain.Item, int, error)
	Create(ctx context.Context, item *domain.Item) error
	Update(ctx context.Context, item *domain.Item) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CatalogService struct {
	items itemRepo
}

func NewCatalogService(items itemRepo) *CatalogService {
	return &CatalogService{items: items}
}

type ItemFilter struct {
	Tag     string
	Query   string
	InStock bool
	Limit   int
	Offset  int
}

func (s *CatalogService) ListItems(ctx context.Context, f ItemFilter) ([]domain.Item, int, error) {
	limit, offset := ClampPage(f.Limit, f.Offset)
	items, total, err := s.items.List(ctx, repository.ItemFilter{
		Tag:     strings.TrimSpace(f.Tag),
		Query:   strings.TrimSpace(f.Query),
		InStock: f.InStock,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ListItems: %w", err)
	}
	return items, total, nil
}

// GetItem hides soft-deleted items.
func (s *CatalogService) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}
	if !it.Active {
		return nil, fmt.Errorf("GetItem: %w", domain.ErrItemNotFound)
	}
	return it, nil
}

type CreateItemRequest struct {
	Title             string
	Author            string
	CoverURL          string
	Tag               string
	AvailableQuantity int64
	UnitPrice         decimal.Decimal
}

func (s *CatalogService) CreateItem(ctx context.Context, req CreateItemRequest) (*domain.Item, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.Title) == "" || req.AvailableQuantity < 0 {
		return nil, fmt.Errorf("CreateItem: %w", domain.ErrInvalidRequest)
	}
	if err := pricing.ValidatePoints(req.UnitPrice); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}

	now := time.Now().UTC()
	it := &domain.Item{
		ID:                uuid.New(),
		Title:             strings.TrimSpace(req.Title),
		Author:            strings.TrimSpace(req.Author),
		CoverURL:          strings.TrimSpace(req.CoverURL),
		Tag:               strings.TrimSpace(req.Tag),
		AvailableQuantity: req.AvailableQuantity,
		UnitPrice:         req.UnitPrice,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}

	log.Info("item created", "item_id", it.ID, "title", it.Title, "unit_price", it.UnitPrice.String())
	return it, nil
}

// UpdateItemRequest is a partial update; nil fields are left unchanged.
type UpdateItemRequest struct {
	Title             *string
	Author            *string
	CoverURL          *string
	Tag               *string
	AvailableQuantity *int64
	UnitPrice         *decimal.Decimal
}

// UpdateItem applies req to an active item. Settlements already recorded keep
// the price they were made at.
func (s *CatalogService) UpdateItem(ctx context.Context, id uuid.UUID, req UpdateItemRequest) (*domain.Item, error) {
	log := logging.FromContext(ctx)

	it, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("UpdateItem: %w", domain.ErrInvalidRequest)
		}
		it.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		it.Author = strings.TrimSpace(*req.Author)
	}
	if req.CoverURL != nil {
		it.CoverURL = strings.TrimSpace(*req.CoverURL)
	}
	if req.Tag != nil {
		it.Tag = strings.TrimSpace(*req.Tag)
	}
	if req.AvailableQuantity != nil {
		if *req.AvailableQuantity < 0 {
			return nil, fmt.Errorf("UpdateItem: %w", domain.ErrInvalidRequest)
		}
		it.AvailableQuantity = *req.AvailableQuantity
	}
	if req.UnitPrice != nil {
		if err := pricing.ValidatePoints(*req.UnitPrice); err != nil {
			return nil, fmt.Errorf("UpdateItem: %w", err)
		}
		it.UnitPrice = *req.UnitPrice
	}

	if err := s.items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}

	log.Info("item updated", "item_id", it.ID, "version", it.Version)
	return it, nil
}

func (s *CatalogService) DeactivateItem(ctx context.Context, id uuid.UUID) error {
	if err := s.items.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("DeactivateItem: %w", err)
	}
	logging.FromContext(ctx).Info("item deactivated", "item_id", id)
	return nil
}

// ClampPage bounds a requested page to [1, maxPageSize] with a non-negative offset.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
