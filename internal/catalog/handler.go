package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quoteflow/quoteflow/internal/auth"
	"github.com/quoteflow/quoteflow/internal/platform/httpx"
	"github.com/quoteflow/quoteflow/internal/quotations"
	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/internal/view"
)

// maxImportUpload limits the CSV upload size to 5 MiB.
const maxImportUpload = 5 << 20

// Handler wires catalog HTTP endpoints: the public storefront page and the
// admin product management screens.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrfManager: csrf}
}

// MountAdminRoutes registers the product management routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.handleCreate)
	r.Get("/import", h.showImportForm)
	r.Post("/import", h.handleImport)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.handleUpdate)
	r.Post("/{id}/toggle", h.handleToggle)
	r.Post("/{id}/delete", h.handleDelete)
}

// ShowCatalog renders the public product listing.
func (h *Handler) ShowCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListVisible(r.Context())
	if err != nil {
		h.logger.Error("list catalog", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "catalog.html", "Catalog", map[string]any{"Products": products})
}

type productForm struct {
	Code        string
	Name        string
	Category    string
	Unit        string
	Price       string
	Description string
	ImageURL    string
	IsVisible   bool
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	search := r.URL.Query().Get("q")
	products, total, err := h.service.List(r.Context(), ListRequest{Search: search, Page: page, PerPage: 20})
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "products_list.html", "Products", map[string]any{
		"Products":   products,
		"Search":     search,
		"Pagination": shared.NewPagination(page, 20, total),
	})
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "product_form.html", "New product", map[string]any{
		"Form":        productForm{IsVisible: true},
		"Action":      "/admin/products",
		"SubmitLabel": "Create product",
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, in, errs := h.parseForm(r)
	if len(errs) == 0 {
		if _, err := h.service.Create(r.Context(), actorFromRequest(r), in); err != nil {
			errs = formErrors(err, h.logger, w)
			if errs == nil {
				return
			}
		}
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, "product_form.html", "New product", map[string]any{
			"Form":        form,
			"Errors":      errs,
			"Action":      "/admin/products",
			"SubmitLabel": "Create product",
		})
		return
	}
	h.flashAndRedirect(w, r, "Product created", "/admin/products")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load product", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "product_form.html", "Edit "+p.Name, map[string]any{
		"Form":        formFromProduct(p),
		"Action":      "/admin/products/" + strconv.FormatInt(p.ID, 10),
		"SubmitLabel": "Save changes",
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, in, errs := h.parseForm(r)
	if len(errs) == 0 {
		if _, err := h.service.Update(r.Context(), actorFromRequest(r), id, in); err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			errs = formErrors(err, h.logger, w)
			if errs == nil {
				return
			}
		}
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, "product_form.html", "Edit product", map[string]any{
			"Form":        form,
			"Errors":      errs,
			"Action":      "/admin/products/" + strconv.FormatInt(id, 10),
			"SubmitLabel": "Save changes",
		})
		return
	}
	h.flashAndRedirect(w, r, "Product updated", "/admin/products")
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := h.service.ToggleVisibility(r.Context(), actorFromRequest(r), id); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("toggle product", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), actorFromRequest(r), id); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("delete product", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.flashAndRedirect(w, r, "Product deleted", "/admin/products")
}

func (h *Handler) showImportForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "product_import.html", "Import products", map[string]any{})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.render(w, r, http.StatusBadRequest, "product_import.html", "Import products", map[string]any{
			"Result": &ImportResult{Errors: []string{"no file uploaded"}},
		})
		return
	}
	defer file.Close()

	result, err := h.service.ImportCSV(r.Context(), actorFromRequest(r), file)
	if err != nil {
		var vErr *quotations.ValidationError
		if errors.As(err, &vErr) {
			h.render(w, r, http.StatusBadRequest, "product_import.html", "Import products", map[string]any{
				"Result": &ImportResult{Errors: []string{vErr.Error()}},
			})
			return
		}
		h.logger.Error("import products", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "product_import.html", "Import products", map[string]any{"Result": result})
}

func (h *Handler) parseForm(r *http.Request) (productForm, ProductInput, map[string]string) {
	errs := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		errs["form"] = "could not be parsed"
		return productForm{}, ProductInput{}, errs
	}
	form := productForm{
		Code:        strings.TrimSpace(r.PostFormValue("code")),
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		Unit:        strings.TrimSpace(r.PostFormValue("unit")),
		Price:       strings.TrimSpace(r.PostFormValue("price")),
		Description: r.PostFormValue("description"),
		ImageURL:    strings.TrimSpace(r.PostFormValue("image_url")),
		IsVisible:   r.PostFormValue("is_visible") != "",
	}
	in := ProductInput{
		Code:        form.Code,
		Name:        form.Name,
		Category:    form.Category,
		Unit:        form.Unit,
		Description: form.Description,
		ImageURL:    form.ImageURL,
		IsVisible:   form.IsVisible,
	}
	if form.Price == "" {
		errs["price"] = "is required"
	} else {
		price, err := decimal.NewFromString(form.Price)
		if err != nil {
			errs["price"] = "must be a number"
		} else {
			in.Price = price
		}
	}
	return form, in, errs
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data map[string]any) {
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
		IsAdmin:     auth.UserFromContext(r.Context()) != nil,
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

func (h *Handler) flashAndRedirect(w http.ResponseWriter, r *http.Request, message, target string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: message})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// formErrors maps a service error onto form field errors. A nil return
// means the error was fatal and already written to the response.
func formErrors(err error, logger *slog.Logger, w http.ResponseWriter) map[string]string {
	var vErr *quotations.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Fields
	}
	logger.Error("save product", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	return nil
}

func formFromProduct(p *Product) productForm {
	form := productForm{
		Code:      p.Code,
		Name:      p.Name,
		Category:  p.Category,
		Unit:      p.Unit,
		Price:     p.Price.StringFixed(2),
		IsVisible: p.IsVisible,
	}
	if p.Description != nil {
		form.Description = *p.Description
	}
	if p.ImageURL != nil {
		form.ImageURL = *p.ImageURL
	}
	return form
}

func actorFromRequest(r *http.Request) quotations.Actor {
	actor := quotations.Actor{IP: r.RemoteAddr}
	if user := auth.UserFromContext(r.Context()); user != nil {
		actor.AdminID = &user.ID
	}
	return actor
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
