package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukapos/dukapos/internal/accounting"
	"github.com/dukapos/dukapos/internal/auth"
	"github.com/dukapos/dukapos/internal/credit"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/mpesa"
	"github.com/dukapos/dukapos/internal/sales"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthMiddleware    *auth.Middleware
	AuthHandler       *auth.Handler
	SalesHandler      *sales.Handler
	CreditHandler     *credit.Handler
	MpesaHandler      *mpesa.Handler
	InventoryHandler  *inventory.Handler
	AccountingHandler *accounting.Handler
}

// NewRouter constructs the chi.Router with dukapos defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mw := params.AuthMiddleware

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r, mw)
		})

		// The payment gateway posts results here without a bearer token.
		r.Route("/mpesa", func(r chi.Router) {
			params.MpesaHandler.MountCallbackRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.Authenticate)
				params.MpesaHandler.MountRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate)
			r.Route("/sales", params.SalesHandler.MountRoutes)
			r.Route("/credit", params.CreditHandler.MountRoutes)
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
			r.Route("/journal", func(r chi.Router) {
				r.Use(mw.RequireAdmin)
				params.AccountingHandler.MountRoutes(r)
			})
		})
	})

	return r
}
