package main

import (
	"net/http"

	"github.com/josh-kwaku/pointstore/internal/handler"
	"github.com/josh-kwaku/pointstore/internal/middleware"
)

func routes(
	jwtSecret string,
	idempotency middleware.IdempotencyStore,
	health *handler.HealthHandler,
	auth *handler.AuthHandler,
	items *handler.ItemHandler,
	settlements *handler.SettlementHandler,
) *http.ServeMux {
	authed := middleware.Auth(jwtSecret)
	replayable := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.Idempotency(idempotency)(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)

	mux.HandleFunc("POST /api/v1/auth/register", auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.Handle("GET /api/v1/me", authed(http.HandlerFunc(auth.Me)))
	mux.Handle("GET /api/v1/me/ledger", authed(http.HandlerFunc(settlements.Ledger)))

	mux.HandleFunc("GET /api/v1/items", items.List)
	mux.HandleFunc("GET /api/v1/items/{id}", items.Get)
	mux.Handle("POST /api/v1/items", admin(items.Create))
	mux.Handle("PATCH /api/v1/items/{id}", admin(items.Update))
	mux.Handle("DELETE /api/v1/items/{id}", admin(items.Delete))

	mux.Handle("GET /api/v1/settlements", authed(http.HandlerFunc(settlements.List)))
	mux.Handle("GET /api/v1/settlements/{id}", authed(http.HandlerFunc(settlements.Get)))
	mux.Handle("GET /api/v1/settlements/{id}/ledger", authed(http.HandlerFunc(settlements.SettlementLedger)))
	mux.Handle("POST /api/v1/settlements", replayable(settlements.Settle))
	mux.Handle("DELETE /api/v1/settlements/{id}", replayable(settlements.Cancel))

	return mux
}
