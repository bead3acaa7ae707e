package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/pricing"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type catalogService interface {
	ListItems(ctx context.Context, f service.ItemFilter) ([]domain.Item, int, error)
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	CreateItem(ctx context.Context, req service.CreateItemRequest) (*domain.Item, error)
	UpdateItem(ctx context.Context, id uuid.UUID, req service.UpdateItemRequest) (*domain.Item, error)
	DeactivateItem(ctx context.Context, id uuid.UUID) error
}

type ItemHandler struct {
	catalog catalogService
}

func NewItemHandler(catalog catalogService) *ItemHandler {
	return &ItemHandler{catalog: catalog}
}

type itemDTO struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	CoverURL          string    `json:"cover_url"`
	Tag               string    `json:"tag"`
	AvailableQuantity int64     `json:"available_quantity"`
	UnitPrice         string    `json:"unit_price"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toItemDTO(it *domain.Item) itemDTO {
	return itemDTO{
		ID:                it.ID,
		Title:             it.Title,
		Author:            it.Author,
		CoverURL:          it.CoverURL,
		Tag:               it.Tag,
		AvailableQuantity: it.AvailableQuantity,
		UnitPrice:         it.UnitPrice.StringFixed(2),
		UpdatedAt:         it.UpdatedAt,
	}
}

type itemListResponse struct {
	Items []itemDTO `json:"items"`
	Page  pageDTO   `json:"page"`
}

type createItemRequest struct {
	Title             string `json:"title"`
	Author            string `json:"author"`
	CoverURL          string `json:"cover_url"`
	Tag               string `json:"tag"`
	AvailableQuantity int64  `json:"available_quantity"`
	UnitPrice         string `json:"unit_price"`
}

func (r createItemRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Message: "required"})
	}
	if r.AvailableQuantity < 0 {
		errs = append(errs, FieldError{Field: "available_quantity", Message: "must not be negative"})
	}
	if _, err := pricing.ParsePoints(r.UnitPrice); err != nil {
		errs = append(errs, FieldError{Field: "unit_price", Message: "must be a non-negative amount with at most 2 decimal places"})
	}
	return errs
}

type updateItemRequest struct {
	Title             *string `json:"title"`
	Author            *string `json:"author"`
	CoverURL          *string `json:"cover_url"`
	Tag               *string `json:"tag"`
	AvailableQuantity *int64  `json:"available_quantity"`
	UnitPrice         *string `json:"unit_price"`
}

func (r updateItemRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Message: "must not be empty"})
	}
	if r.AvailableQuantity != nil && *r.AvailableQuantity < 0 {
		errs = append(errs, FieldError{Field: "available_quantity", Message: "must not be negative"})
	}
	if r.UnitPrice != nil {
		if _, err := pricing.ParsePoints(*r.UnitPrice); err != nil {
			errs = append(errs, FieldError{Field: "unit_price", Message: "must be a non-negative amount with at most 2 decimal places"})
		}
	}
	return errs
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fields []FieldError
	limit, offset, pageErrs := parsePage(q.Get("limit"), q.Get("offset"))
	fields = append(fields, pageErrs...)

	inStock := false
	if raw := q.Get("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fields = append(fields, FieldError{Field: "in_stock", Message: "must be a boolean"})
		}
		inStock = v
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	limit, offset = service.ClampPage(limit, offset)
	items, total, err := h.catalog.ListItems(r.Context(), service.ItemFilter{
		Tag:     q.Get("tag"),
		Query:   q.Get("q"),
		InStock: inStock,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]itemDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, toItemDTO(&items[i]))
	}

	RespondSuccess(w, http.StatusOK, itemListResponse{
		Items: dtos,
		Page:  pageDTO{Total: total, Limit: limit, Offset: offset},
	})
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrItemNotFound, nil)
		return
	}

	it, err := h.catalog.GetItem(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toItemDTO(it))
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	price, _ := pricing.ParsePoints(req.UnitPrice)
	it, err := h.catalog.CreateItem(r.Context(), service.CreateItemRequest{
		Title:             req.Title,
		Author:            req.Author,
		CoverURL:          req.CoverURL,
		Tag:               req.Tag,
		AvailableQuantity: req.AvailableQuantity,
		UnitPrice:         price,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toItemDTO(it))
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrItemNotFound, nil)
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	update := service.UpdateItemRequest{
		Title:             req.Title,
		Author:            req.Author,
		CoverURL:          req.CoverURL,
		Tag:               req.Tag,
		AvailableQuantity: req.AvailableQuantity,
	}
	if req.UnitPrice != nil {
		var price decimal.Decimal
		price, _ = pricing.ParsePoints(*req.UnitPrice)
		update.UnitPrice = &price
	}

	it, err := h.catalog.UpdateItem(r.Context(), id, update)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toItemDTO(it))
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrItemNotFound, nil)
		return
	}

	if err := h.catalog.DeactivateItem(r.Context(), id); err != nil {
		RespondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parsePage(rawLimit, rawOffset string) (int, int, []FieldError) {
	var errs []FieldError
	limit, offset := 0, 0
	if rawLimit != "" {
		v, err := strconv.Atoi(rawLimit)
		if err != nil || v < 1 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		limit = v
	}
	if rawOffset != "" {
		v, err := strconv.Atoi(rawOffset)
		if err != nil || v < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		offset = v
	}
	return limit, offset, errs
}
