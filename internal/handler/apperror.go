package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Admin role required"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrEmptyBasket           = &AppError{http.StatusBadRequest, "EMPTY_BASKET", "Basket must contain at least one line"}
	ErrInvalidQuantity       = &AppError{http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be at least 1"}
	ErrAccountNotFound       = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrItemNotFound          = &AppError{http.StatusNotFound, "ITEM_NOT_FOUND", "Item not found"}
	ErrInsufficientStock     = &AppError{http.StatusConflict, "INSUFFICIENT_STOCK", "Not enough stock for the requested quantity"}
	ErrInsufficientFunds     = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient points"}
	ErrSettlementNotFound    = &AppError{http.StatusNotFound, "SETTLEMENT_NOT_FOUND", "Settlement not found"}
	ErrSettlementAborted     = &AppError{http.StatusServiceUnavailable, "SETTLEMENT_ABORTED", "Settlement could not be completed, please retry"}
	ErrAccountExists         = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "An account with this email already exists"}
	ErrItemExists            = &AppError{http.StatusConflict, "ITEM_ALREADY_EXISTS", "An item with this title already exists"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still being processed"}
)
