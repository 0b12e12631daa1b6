package quotations

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/internal/view"
)

// requestValidityDays is how long an anonymous quote request stays valid
// before an admin adjusts the window.
const requestValidityDays = 14

// PublicHandler wires the unauthenticated surface: the anonymous quote
// request form and the tokened customer pages.
type PublicHandler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
}

// NewPublicHandler constructs a PublicHandler instance.
func NewPublicHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *PublicHandler {
	return &PublicHandler{logger: logger, service: service, templates: templates, csrfManager: csrf}
}

// MountRequestRoutes registers the anonymous quote request form.
func (h *PublicHandler) MountRequestRoutes(r chi.Router) {
	r.Get("/", h.showRequestForm)
	r.Post("/", h.handleRequest)
}

// MountTokenRoutes registers the tokened customer routes.
func (h *PublicHandler) MountTokenRoutes(r chi.Router) {
	r.Get("/{token}", h.showQuote)
	r.Post("/{token}/approve", h.handleApprove)
	r.Post("/{token}/reject", h.handleReject)
}

func (h *PublicHandler) showRequestForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "quote_request.html", "Request a quotation", map[string]any{})
}

func (h *PublicHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	errs := make(map[string]string)
	in := QuotationInput{
		CustomerName:              strings.TrimSpace(r.PostFormValue("customer_name")),
		CustomerCompany:           optional(strings.TrimSpace(r.PostFormValue("customer_company"))),
		CustomerContact:           optional(strings.TrimSpace(r.PostFormValue("customer_contact"))),
		CustomerEmail:             optional(strings.TrimSpace(r.PostFormValue("customer_email"))),
		DeliveryAddress:           optional(strings.TrimSpace(r.PostFormValue("delivery_address"))),
		AdditionalRequirements:    optional(strings.TrimSpace(r.PostFormValue("additional_requirements"))),
		PreferredResponseTimeline: optional(strings.TrimSpace(r.PostFormValue("preferred_response_timeline"))),
	}
	_, in.Items = parseItems(r, errs)

	now := time.Now()
	in.ValidFrom = now.Truncate(24 * time.Hour)
	in.ValidTill = in.ValidFrom.AddDate(0, 0, requestValidityDays)
	if len(errs) == 0 {
		in.ComputeTotals()
		created, err := h.service.Create(r.Context(), in, Actor{IP: r.RemoteAddr})
		if err == nil {
			http.Redirect(w, r, "/q/"+created.AccessToken, http.StatusSeeOther)
			return
		}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			errs = vErr.Fields
		} else {
			h.logger.Error("create quote request", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	h.render(w, r, http.StatusBadRequest, "quote_request.html", "Request a quotation", map[string]any{"Errors": errs})
}

func (h *PublicHandler) showQuote(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadByToken(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "quote_public.html", "Quotation "+q.QuotationNumber, map[string]any{"Quotation": q})
}

func (h *PublicHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	q, err := h.service.CustomerApprove(r.Context(), token, Actor{IP: r.RemoteAddr})
	if err != nil {
		h.respondFailure(w, r, token, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Thank you, quotation " + q.QuotationNumber + " is accepted."})
	}
	http.Redirect(w, r, "/q/"+token, http.StatusSeeOther)
}

func (h *PublicHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := chi.URLParam(r, "token")
	_, err := h.service.CustomerReject(r.Context(), token, r.PostFormValue("reason"), Actor{IP: r.RemoteAddr})
	if err != nil {
		h.respondFailure(w, r, token, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Your change request has been sent."})
	}
	http.Redirect(w, r, "/q/"+token, http.StatusSeeOther)
}

func (h *PublicHandler) respondFailure(w http.ResponseWriter, r *http.Request, token string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, ErrInvalidTransition), IsValidation(err):
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: err.Error()})
		}
		http.Redirect(w, r, "/q/"+token, http.StatusSeeOther)
	default:
		h.logger.Error("customer response", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *PublicHandler) loadByToken(w http.ResponseWriter, r *http.Request) (*Quotation, bool) {
	q, err := h.service.GetByAccessToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return nil, false
		}
		h.logger.Error("load quotation by token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return q, true
}

func (h *PublicHandler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
