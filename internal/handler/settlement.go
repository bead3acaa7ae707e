package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pointstore/internal/auth"
	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type settlementService interface {
	Settle(ctx context.Context, accountID uuid.UUID, basket []domain.BasketLine) (*domain.Settlement, error)
	Cancel(ctx context.Context, accountID, settlementID uuid.UUID) error
	Get(ctx context.Context, accountID, settlementID uuid.UUID) (*domain.Settlement, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Settlement, int, error)
	Ledger(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	SettlementLedger(ctx context.Context, accountID, settlementID uuid.UUID) ([]domain.LedgerEntry, error)
}

type SettlementHandler struct {
	settlements settlementService
}

func NewSettlementHandler(settlements settlementService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

type basketLineRequest struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int64     `json:"quantity"`
}

// settleRequest is checked only for shape here. Empty baskets and bad
// quantities are reported by the engine so the codes stay the same for
// every caller.
type settleRequest struct {
	Lines []basketLineRequest `json:"lines"`
}

func (r settleRequest) Validate() []FieldError {
	var errs []FieldError
	for _, l := range r.Lines {
		if l.ItemID == uuid.Nil {
			errs = append(errs, FieldError{Field: "lines.item_id", Message: "required"})
			break
		}
	}
	return errs
}

type settlementLineDTO struct {
	Position  int       `json:"position"`
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

type settlementDTO struct {
	ID          uuid.UUID           `json:"id"`
	Status      string              `json:"status"`
	TotalValue  string              `json:"total_value"`
	Lines       []settlementLineDTO `json:"lines"`
	CreatedAt   time.Time           `json:"created_at"`
	CancelledAt *time.Time          `json:"cancelled_at"`
}

func toSettlementDTO(s *domain.Settlement) settlementDTO {
	lines := make([]settlementLineDTO, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, settlementLineDTO{
			Position:  l.Position,
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		})
	}
	return settlementDTO{
		ID:          s.ID,
		Status:      string(s.Status),
		TotalValue:  s.TotalValue.StringFixed(2),
		Lines:       lines,
		CreatedAt:   s.CreatedAt,
		CancelledAt: s.CancelledAt,
	}
}

type ledgerEntryDTO struct {
	ID            uuid.UUID `json:"id"`
	SettlementID  uuid.UUID `json:"settlement_id"`
	EntryType     string    `json:"entry_type"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

func toLedgerEntryDTOs(entries []domain.LedgerEntry) []ledgerEntryDTO {
	dtos := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, ledgerEntryDTO{
			ID:            e.ID,
			SettlementID:  e.SettlementID,
			EntryType:     string(e.EntryType),
			Amount:        e.Amount.StringFixed(2),
			BalanceBefore: e.BalanceBefore.StringFixed(2),
			BalanceAfter:  e.BalanceAfter.StringFixed(2),
			CreatedAt:     e.CreatedAt,
		})
	}
	return dtos
}

type ledgerResponse struct {
	Entries []ledgerEntryDTO `json:"entries"`
	Page    pageDTO          `json:"page"`
}

type settlementListResponse struct {
	Settlements []settlementDTO `json:"settlements"`
	Page        pageDTO         `json:"page"`
}

func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	basket := make([]domain.BasketLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		basket = append(basket, domain.BasketLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}

	st, err := h.settlements.Settle(r.Context(), accountID, basket)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toSettlementDTO(st))
}

func (h *SettlementHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	settlementID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrSettlementNotFound, nil)
		return
	}

	if err := h.settlements.Cancel(r.Context(), accountID, settlementID); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"id":     settlementID,
		"status": domain.SettlementStatusCancelled,
	})
}

func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	settlementID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrSettlementNotFound, nil)
		return
	}

	st, err := h.settlements.Get(r.Context(), accountID, settlementID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettlementDTO(st))
}

func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	limit, offset, fields := parsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	limit, offset = service.ClampPage(limit, offset)

	settlements, total, err := h.settlements.List(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]settlementDTO, 0, len(settlements))
	for i := range settlements {
		dtos = append(dtos, toSettlementDTO(&settlements[i]))
	}

	RespondSuccess(w, http.StatusOK, settlementListResponse{
		Settlements: dtos,
		Page:        pageDTO{Total: total, Limit: limit, Offset: offset},
	})
}

func (h *SettlementHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	limit, offset, fields := parsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	limit, offset = service.ClampPage(limit, offset)

	entries, total, err := h.settlements.Ledger(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, ledgerResponse{
		Entries: toLedgerEntryDTOs(entries),
		Page:    pageDTO{Total: total, Limit: limit, Offset: offset},
	})
}

// SettlementLedger lists the balance movements of one owned settlement.
func (h *SettlementHandler) SettlementLedger(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	settlementID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrSettlementNotFound, nil)
		return
	}

	entries, err := h.settlements.SettlementLedger(r.Context(), accountID, settlementID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"entries": toLedgerEntryDTOs(entries)})
}
