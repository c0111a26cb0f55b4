// Package router assembles the HTTP surface.
package router

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/devtube/backend/internal/admin"
	"github.com/devtube/backend/internal/auth"
	"github.com/devtube/backend/internal/escrow"
	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/notify"
	"github.com/devtube/backend/internal/projects"
	"github.com/devtube/backend/internal/sandbox"
	"github.com/devtube/backend/internal/social"
	"github.com/devtube/backend/internal/wallet"
)

// Handlers bundles every endpoint group the router mounts.
type Handlers struct {
	Auth     *auth.Handler
	Projects *projects.Handler
	Escrow   *escrow.Handler
	Wallet   *wallet.Handler
	Social   *social.Handler
	Sandbox  *sandbox.Handler
	Telegram *notify.Handler
	Admin    *admin.Handler
}

// New builds the API mux. validator/loader power the auth middlewares.
func New(h Handlers, validator middleware.TokenValidator, loader middleware.AccountLoader, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Auth(validator, loader)
	optional := middleware.AuthOptional(validator, loader)
	adminOnly := func(next http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(next))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth and profile.
	mux.HandleFunc("POST /api/v1/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	mux.Handle("GET /api/v1/profile", authed(http.HandlerFunc(h.Auth.Me)))
	mux.Handle("PUT /api/v1/profile", authed(http.HandlerFunc(h.Auth.UpdateMe)))
	mux.Handle("GET /api/v1/users/{username}", optional(http.HandlerFunc(h.Social.Profile)))
	mux.Handle("POST /api/v1/users/{id}/follow", authed(http.HandlerFunc(h.Social.Follow)))

	// Listings.
	mux.HandleFunc("GET /api/v1/listings", h.Projects.List)
	mux.HandleFunc("GET /api/v1/listings/trending", h.Projects.Trending)
	mux.Handle("GET /api/v1/listings/feed", authed(http.HandlerFunc(h.Projects.Feed)))
	mux.Handle("GET /api/v1/listings/mine", authed(http.HandlerFunc(h.Projects.Mine)))
	mux.Handle("GET /api/v1/listings/liked", authed(http.HandlerFunc(h.Projects.Liked)))
	mux.Handle("GET /api/v1/listings/saved", authed(http.HandlerFunc(h.Projects.Saved)))
	mux.Handle("GET /api/v1/listings/bought", authed(http.HandlerFunc(h.Projects.Bought)))
	mux.Handle("GET /api/v1/listings/{slug}", optional(http.HandlerFunc(h.Projects.Detail)))
	mux.Handle("GET /api/v1/listings/{slug}/live", optional(http.HandlerFunc(h.Projects.Live)))
	mux.Handle("POST /api/v1/listings", authed(http.HandlerFunc(h.Projects.Create)))
	mux.Handle("PUT /api/v1/listings/{id}", authed(http.HandlerFunc(h.Projects.Update)))
	mux.Handle("DELETE /api/v1/listings/{id}", authed(http.HandlerFunc(h.Projects.Delete)))
	mux.Handle("POST /api/v1/listings/{id}/like", authed(http.HandlerFunc(h.Projects.Like)))
	mux.Handle("POST /api/v1/listings/{id}/save", authed(http.HandlerFunc(h.Projects.Save)))
	mux.Handle("POST /api/v1/listings/{id}/report", authed(http.HandlerFunc(h.Projects.Report)))
	mux.Handle("POST /api/v1/listings/{id}/buy", authed(http.HandlerFunc(h.Escrow.Buy)))

	// Comments and reviews.
	mux.HandleFunc("GET /api/v1/listings/{id}/comments", h.Social.ListComments)
	mux.Handle("POST /api/v1/listings/{id}/comments", authed(http.HandlerFunc(h.Social.CreateComment)))
	mux.HandleFunc("GET /api/v1/listings/{id}/reviews", h.Social.ListReviews)
	mux.Handle("POST /api/v1/listings/{id}/reviews", authed(http.HandlerFunc(h.Social.CreateReview)))

	// Wallet.
	mux.Handle("GET /api/v1/wallet", authed(http.HandlerFunc(h.Wallet.Balance)))
	mux.Handle("POST /api/v1/wallet/deposits", authed(http.HandlerFunc(h.Wallet.CreateDeposit)))
	mux.Handle("GET /api/v1/wallet/deposits", authed(http.HandlerFunc(h.Wallet.ListDeposits)))
	mux.Handle("POST /api/v1/wallet/withdrawals", authed(http.HandlerFunc(h.Wallet.CreateWithdrawal)))
	mux.Handle("GET /api/v1/wallet/withdrawals", authed(http.HandlerFunc(h.Wallet.ListWithdrawals)))
	mux.Handle("GET /api/v1/wallet/purchases", authed(http.HandlerFunc(h.Escrow.List)))
	mux.Handle("POST /api/v1/purchases/{id}/confirm", authed(http.HandlerFunc(h.Escrow.Confirm)))
	mux.Handle("POST /api/v1/purchases/{id}/dispute", authed(http.HandlerFunc(h.Escrow.Dispute)))

	// Community and support.
	mux.HandleFunc("GET /api/v1/community/messages", h.Social.Chat)
	mux.Handle("POST /api/v1/community/messages", authed(http.HandlerFunc(h.Social.PostMessage)))
	mux.Handle("POST /api/v1/contact", authed(http.HandlerFunc(h.Social.Contact)))
	mux.Handle("GET /api/v1/notifications", authed(http.HandlerFunc(h.Social.Notifications)))
	mux.Handle("POST /api/v1/notifications/read", authed(http.HandlerFunc(h.Social.ReadNotifications)))

	// Tools.
	mux.Handle("POST /api/v1/tools/execute", authed(http.HandlerFunc(h.Sandbox.Execute)))

	// Telegram.
	mux.Handle("GET /api/v1/telegram/link", authed(http.HandlerFunc(h.Telegram.Link)))
	mux.HandleFunc("POST /api/v1/telegram/webhook", h.Telegram.Webhook)

	// Admin.
	mux.Handle("GET /api/v1/admin/deposits", adminOnly(h.Admin.PendingDeposits))
	mux.Handle("POST /api/v1/admin/deposits/{id}/approve", adminOnly(h.Admin.ApproveDeposit))
	mux.Handle("POST /api/v1/admin/deposits/{id}/reject", adminOnly(h.Admin.RejectDeposit))
	mux.Handle("GET /api/v1/admin/withdrawals", adminOnly(h.Admin.PendingWithdrawals))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/approve", adminOnly(h.Admin.ApproveWithdrawal))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/reject", adminOnly(h.Admin.RejectWithdrawal))
	mux.Handle("GET /api/v1/admin/disputes", adminOnly(h.Admin.ListDisputes))
	mux.Handle("POST /api/v1/admin/disputes/{id}/resolve", adminOnly(h.Admin.ResolveDispute))
	mux.Handle("POST /api/v1/admin/listings/{id}/freeze", adminOnly(h.Admin.FreezeListing))
	mux.Handle("POST /api/v1/admin/listings/{id}/unfreeze", adminOnly(h.Admin.UnfreezeListing))

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}
