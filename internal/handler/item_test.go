package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type mockCatalog struct {
	filter  service.ItemFilter
	created service.CreateItemRequest
	updated service.UpdateItemRequest
	item    *domain.Item
	err     error
}

func (m *mockCatalog) ListItems(_ context.Context, f service.ItemFilter) ([]domain.Item, int, error) {
	m.filter = f
	if m.item == nil {
		return nil, 0, m.err
	}
	return []domain.Item{*m.item}, 1, m.err
}

func (m *mockCatalog) GetItem(context.Context, uuid.UUID) (*domain.Item, error) {
	return m.item, m.err
}

func (m *mockCatalog) CreateItem(_ context.Context, req service.CreateItemRequest) (*domain.Item, error) {
	m.created = req
	return m.item, m.err
}

func (m *mockCatalog) UpdateItem(_ context.Context, _ uuid.UUID, req service.UpdateItemRequest) (*domain.Item, error) {
	m.updated = req
	return m.item, m.err
}

func (m *mockCatalog) DeactivateItem(context.Context, uuid.UUID) error {
	return m.err
}

func sampleItem() *domain.Item {
	return &domain.Item{
		ID:                uuid.New(),
		Title:             "Dune",
		Author:            "Frank Herbert",
		Tag:               "scifi",
		AvailableQuantity: 4,
		UnitPrice:         decimal.RequireFromString("9.9"),
		Active:            true,
	}
}

func TestItemHandler_ListParsesFilter(t *testing.T) {
	catalog := &mockCatalog{item: sampleItem()}
	h := NewItemHandler(catalog)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items?tag=scifi&q=dun&in_stock=true&limit=5&offset=10", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ItemFilter{Tag: "scifi", Query: "dun", InStock: true, Limit: 5, Offset: 10}, catalog.filter)

	var resp itemListResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "9.90", resp.Items[0].UnitPrice)
	assert.Equal(t, pageDTO{Total: 1, Limit: 5, Offset: 10}, resp.Page)
}

func TestItemHandler_ListRejectsBadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "in_stock not bool", query: "in_stock=maybe"},
		{name: "limit not a number", query: "limit=ten"},
		{name: "zero limit", query: "limit=0"},
		{name: "negative offset", query: "offset=-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewItemHandler(&mockCatalog{})
			rec := httptest.NewRecorder()

			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items?"+tc.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestItemHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"title":"Dune","available_quantity":4,"unit_price":"9.90"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "too many decimals",
			body:       `{"title":"Dune","available_quantity":4,"unit_price":"9.999"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "negative quantity",
			body:       `{"title":"Dune","available_quantity":-1,"unit_price":"1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "duplicate title",
			body:       `{"title":"Dune","available_quantity":4,"unit_price":"9.90"}`,
			err:        domain.ErrItemExists,
			wantStatus: http.StatusConflict,
			wantCode:   "ITEM_ALREADY_EXISTS",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &mockCatalog{item: sampleItem(), err: tc.err}
			h := NewItemHandler(catalog)
			rec := httptest.NewRecorder()

			h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decodeEnvelope(t, rec).Error.Code)
			}
		})
	}
}

func TestItemHandler_UpdatePassesOnlyProvidedFields(t *testing.T) {
	catalog := &mockCatalog{item: sampleItem()}
	h := NewItemHandler(catalog)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/items/"+id, strings.NewReader(`{"unit_price":"15.25"}`))
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()

	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, catalog.updated.Title)
	assert.Nil(t, catalog.updated.AvailableQuantity)
	require.NotNil(t, catalog.updated.UnitPrice)
	assert.True(t, decimal.RequireFromString("15.25").Equal(*catalog.updated.UnitPrice))
}

func TestItemHandler_GetAndDelete(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		id         string
		err        error
		wantStatus int
	}{
		{name: "get", method: http.MethodGet, id: uuid.NewString(), wantStatus: http.StatusOK},
		{name: "get missing", method: http.MethodGet, id: uuid.NewString(), err: domain.ErrItemNotFound, wantStatus: http.StatusNotFound},
		{name: "get bad id", method: http.MethodGet, id: "nope", wantStatus: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, id: uuid.NewString(), wantStatus: http.StatusNoContent},
		{name: "delete missing", method: http.MethodDelete, id: uuid.NewString(), err: domain.ErrItemNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewItemHandler(&mockCatalog{item: sampleItem(), err: tc.err})
			req := httptest.NewRequest(tc.method, "/api/v1/items/"+tc.id, nil)
			req.SetPathValue("id", tc.id)
			rec := httptest.NewRecorder()

			if tc.method == http.MethodGet {
				h.Get(rec, req)
			} else {
				h.Delete(rec, req)
			}

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
