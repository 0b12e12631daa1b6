package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quoteflow/quoteflow/internal/auth"
	"github.com/quoteflow/quoteflow/internal/catalog"
	"github.com/quoteflow/quoteflow/internal/observability"
	"github.com/quoteflow/quoteflow/internal/platform/httpx"
	"github.com/quoteflow/quoteflow/internal/quotations"
	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/internal/view"
	"github.com/quoteflow/quoteflow/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler      *auth.Handler
	CatalogHandler   *catalog.Handler
	QuotationHandler *quotations.Handler
	PublicHandler    *quotations.PublicHandler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with QuoteFlow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:     "QuoteFlow",
			CSRFToken: csrfToken,
			Flash:     flash,
			IsAdmin:   sess != nil && sess.User() != "",
		}
		if err := params.Templates.Render(w, "landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Get("/catalog", params.CatalogHandler.ShowCatalog)

	r.Route("/quote/request", func(r chi.Router) {
		r.Use(PublicRateLimit())
		params.PublicHandler.MountRequestRoutes(r)
	})
	r.Route("/q", func(r chi.Router) {
		r.Use(PublicRateLimit())
		params.PublicHandler.MountTokenRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.AuthHandler.RequireAdmin)
		r.Route("/quotations", params.QuotationHandler.MountAdminRoutes)
		r.Route("/products", params.CatalogHandler.MountAdminRoutes)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
