package quotations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quoteflow/quoteflow/internal/auth"
	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/internal/view"
)

const formDateLayout = "2006-01-02"

// AllStatuses lists the workflow states in lifecycle order, for filter
// dropdowns.
var AllStatuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusSent, StatusAccepted}

// Handler wires the admin quotation screens.
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

// MountAdminRoutes registers the quotation management routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.show)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.handleUpdate)
	r.Get("/{id}/amend", h.showAmendForm)
	r.Post("/{id}/amend", h.handleAmendAndSend)
	r.Post("/{id}/submit", h.handleSubmit)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/send", h.handleSend)
	r.Post("/{id}/delete", h.handleDelete)
}

type itemForm struct {
	Name     string
	Quantity int
	Price    string
}

type quotationForm struct {
	CustomerName    string
	CustomerCompany string
	CustomerContact string
	CustomerEmail   string
	DeliveryAddress string
	Items           []itemForm
	Tax             string
	DiscountType    string
	DiscountValue   string
	ShippingCharges string
	HandlingCharges string
	ValidFrom       string
	ValidTill       string
	Priority        string
	Notes           string
}

type listFilters struct {
	Status string
	Search string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := listFilters{Status: q.Get("status"), Search: q.Get("search")}
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	const perPage = 25

	req := ListRequest{Search: filters.Search, Limit: perPage, Offset: (page - 1) * perPage}
	if s := Status(filters.Status); ValidStatus(s) {
		req.Status = &s
	}
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list quotations", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "quotations_list.html", "Quotations", map[string]any{
		"Quotations": items,
		"Total":      total,
		"Statuses":   AllStatuses,
		"Filters":    filters,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "quotation_detail.html", q.QuotationNumber, map[string]any{
		"Quotation": q,
		"QuoteURL":  h.service.QuoteURL(q),
	})
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	form := quotationForm{
		Items:        []itemForm{{Quantity: 1}},
		DiscountType: string(DiscountNone),
		Priority:     string(PriorityMedium),
		ValidFrom:    time.Now().Format(formDateLayout),
		ValidTill:    time.Now().AddDate(0, 0, 14).Format(formDateLayout),
	}
	h.renderForm(w, r, http.StatusOK, "New quotation", form, nil, "/admin/quotations", "Create quotation", "/admin/quotations")
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, in, errs := parseQuotationForm(r)
	if len(errs) == 0 {
		created, err := h.service.Create(r.Context(), in, actorFromRequest(r))
		if err == nil {
			h.flashAndRedirect(w, r, "Quotation "+created.QuotationNumber+" created", "/admin/quotations/"+strconv.FormatInt(created.ID, 10))
			return
		}
		errs = h.serviceErrors(w, err)
		if errs == nil {
			return
		}
	}
	h.renderForm(w, r, http.StatusBadRequest, "New quotation", form, errs, "/admin/quotations", "Create quotation", "/admin/quotations")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	action := "/admin/quotations/" + strconv.FormatInt(q.ID, 10)
	h.renderForm(w, r, http.StatusOK, "Edit "+q.QuotationNumber, formFromQuotation(q), nil, action, "Save changes", action)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, in, errs := parseQuotationForm(r)
	action := "/admin/quotations/" + strconv.FormatInt(id, 10)
	if len(errs) == 0 {
		_, err := h.service.Update(r.Context(), id, in, actorFromRequest(r))
		if err == nil {
			h.flashAndRedirect(w, r, "Quotation updated", action)
			return
		}
		if errors.Is(err, ErrLockedForEditing) {
			h.flashError(w, r, "This quotation is locked for editing. Use amend and send instead.", action)
			return
		}
		errs = h.serviceErrors(w, err)
		if errs == nil {
			return
		}
	}
	h.renderForm(w, r, http.StatusBadRequest, "Edit quotation", form, errs, action, "Save changes", action)
}

func (h *Handler) showAmendForm(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	action := "/admin/quotations/" + strconv.FormatInt(q.ID, 10) + "/amend"
	back := "/admin/quotations/" + strconv.FormatInt(q.ID, 10)
	h.renderForm(w, r, http.StatusOK, "Amend "+q.QuotationNumber, formFromQuotation(q), nil, action, "Amend and send", back)
}

func (h *Handler) handleAmendAndSend(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, in, errs := parseQuotationForm(r)
	action := "/admin/quotations/" + strconv.FormatInt(id, 10) + "/amend"
	back := "/admin/quotations/" + strconv.FormatInt(id, 10)
	if len(errs) == 0 {
		result, err := h.service.AmendAndSend(r.Context(), id, in, actorFromRequest(r))
		if err == nil {
			http.Redirect(w, r, result.WhatsAppLink, http.StatusSeeOther)
			return
		}
		errs = h.serviceErrors(w, err)
		if errs == nil {
			return
		}
	}
	h.renderForm(w, r, http.StatusBadRequest, "Amend quotation", form, errs, action, "Amend and send", back)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, actor Actor, r *http.Request) (string, error) {
		_, err := h.service.Submit(r.Context(), id, actor)
		return "Quotation submitted for review", err
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, actor Actor, r *http.Request) (string, error) {
		var notes *string
		if n := strings.TrimSpace(r.PostFormValue("admin_notes")); n != "" {
			notes = &n
		}
		_, err := h.service.Approve(r.Context(), id, notes, actor)
		return "Quotation approved", err
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, actor Actor, r *http.Request) (string, error) {
		_, err := h.service.Reject(r.Context(), id, r.PostFormValue("admin_notes"), actor)
		return "Quotation rejected", err
	})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	back := "/admin/quotations/" + strconv.FormatInt(id, 10)
	result, err := h.service.Send(r.Context(), id, actorFromRequest(r))
	if err != nil {
		h.transitionFailure(w, r, err, back)
		return
	}
	http.Redirect(w, r, result.WhatsAppLink, http.StatusSeeOther)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id, actorFromRequest(r)); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("delete quotation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.flashAndRedirect(w, r, "Quotation deleted", "/admin/quotations")
}

// transition runs an id-addressed lifecycle operation that redirects back to
// the detail page on both success and workflow failure.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(int64, Actor, *http.Request) (string, error)) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := "/admin/quotations/" + strconv.FormatInt(id, 10)
	message, err := op(id, actorFromRequest(r), r)
	if err != nil {
		h.transitionFailure(w, r, err, back)
		return
	}
	h.flashAndRedirect(w, r, message, back)
}

func (h *Handler) transitionFailure(w http.ResponseWriter, r *http.Request, err error, back string) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, ErrInvalidTransition):
		h.flashError(w, r, err.Error(), back)
	case IsValidation(err):
		h.flashError(w, r, err.Error(), back)
	default:
		h.logger.Error("quotation transition", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// serviceErrors maps a create/update error to form field errors. A nil
// return means the response has already been written.
func (h *Handler) serviceErrors(w http.ResponseWriter, err error) map[string]string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Fields
	}
	h.logger.Error("save quotation", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	return nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Quotation, bool) {
	id, err := parseID(r)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return nil, false
		}
		h.logger.Error("load quotation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return q, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, title string, form quotationForm, errs map[string]string, action, submitLabel, cancelURL string) {
	h.render(w, r, status, "quotation_form.html", title, map[string]any{
		"Form":        form,
		"Errors":      errs,
		"Action":      action,
		"SubmitLabel": submitLabel,
		"CancelURL":   cancelURL,
	})
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

func (h *Handler) flashError(w http.ResponseWriter, r *http.Request, message, target string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parseQuotationForm reads the admin form fields into a QuotationInput.
// Totals are computed server-side from the parsed items and charges.
func parseQuotationForm(r *http.Request) (quotationForm, QuotationInput, map[string]string) {
	errs := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		errs["form"] = "could not be parsed"
		return quotationForm{}, QuotationInput{}, errs
	}
	form := quotationForm{
		CustomerName:    strings.TrimSpace(r.PostFormValue("customer_name")),
		CustomerCompany: strings.TrimSpace(r.PostFormValue("customer_company")),
		CustomerContact: strings.TrimSpace(r.PostFormValue("customer_contact")),
		CustomerEmail:   strings.TrimSpace(r.PostFormValue("customer_email")),
		DeliveryAddress: strings.TrimSpace(r.PostFormValue("delivery_address")),
		Tax:             strings.TrimSpace(r.PostFormValue("tax")),
		DiscountType:    r.PostFormValue("discount_type"),
		DiscountValue:   strings.TrimSpace(r.PostFormValue("discount_value")),
		ShippingCharges: strings.TrimSpace(r.PostFormValue("shipping_charges")),
		HandlingCharges: strings.TrimSpace(r.PostFormValue("handling_charges")),
		ValidFrom:       r.PostFormValue("valid_from"),
		ValidTill:       r.PostFormValue("valid_till"),
		Priority:        r.PostFormValue("priority"),
		Notes:           strings.TrimSpace(r.PostFormValue("notes")),
	}

	in := QuotationInput{
		CustomerName:    form.CustomerName,
		CustomerCompany: optional(form.CustomerCompany),
		CustomerContact: optional(form.CustomerContact),
		CustomerEmail:   optional(form.CustomerEmail),
		DeliveryAddress: optional(form.DeliveryAddress),
		DiscountType:    DiscountType(form.DiscountType),
		Priority:        Priority(form.Priority),
		Notes:           optional(form.Notes),
	}

	form.Items, in.Items = parseItems(r, errs)
	in.Tax = parseAmount(form.Tax, "tax", errs)
	in.DiscountValue = parseAmount(form.DiscountValue, "discount_value", errs)
	in.ShippingCharges = parseAmount(form.ShippingCharges, "shipping_charges", errs)
	in.HandlingCharges = parseAmount(form.HandlingCharges, "handling_charges", errs)
	in.ValidFrom = parseDate(form.ValidFrom, "valid_from", errs)
	in.ValidTill = parseDate(form.ValidTill, "valid_till", errs)

	if len(errs) == 0 {
		in.ComputeTotals()
	}
	return form, in, errs
}

func parseItems(r *http.Request, errs map[string]string) ([]itemForm, []LineItemInput) {
	names := r.PostForm["item_name"]
	quantities := r.PostForm["item_quantity"]
	prices := r.PostForm["item_price"]

	var (
		forms  []itemForm
		inputs []LineItemInput
	)
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		form := itemForm{Name: name, Quantity: 1, Price: "0.00"}
		if i < len(quantities) {
			qty, err := strconv.Atoi(strings.TrimSpace(quantities[i]))
			if err != nil || qty < 1 {
				errs["items"] = "quantities must be whole numbers of at least 1"
			} else {
				form.Quantity = qty
			}
		}
		if i < len(prices) {
			if p := strings.TrimSpace(prices[i]); p != "" {
				form.Price = p
			}
		}
		price, err := decimal.NewFromString(form.Price)
		if err != nil || price.IsNegative() {
			errs["items"] = "prices must be non-negative numbers"
			price = decimal.Zero
		}
		forms = append(forms, form)
		inputs = append(inputs, LineItemInput{Name: name, Quantity: form.Quantity, Price: price})
	}
	if len(inputs) == 0 {
		errs["items"] = "at least one item is required"
	}
	return forms, inputs
}

func parseAmount(raw, field string, errs map[string]string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		errs[field] = "must be a non-negative number"
		return decimal.Zero
	}
	return d
}

func parseDate(raw, field string, errs map[string]string) time.Time {
	t, err := time.Parse(formDateLayout, raw)
	if err != nil {
		errs[field] = "must be a date in YYYY-MM-DD form"
	}
	return t
}

func formFromQuotation(q *Quotation) quotationForm {
	form := quotationForm{
		CustomerName:    q.CustomerName,
		CustomerCompany: derefString(q.CustomerCompany),
		CustomerContact: derefString(q.CustomerContact),
		CustomerEmail:   derefString(q.CustomerEmail),
		DeliveryAddress: derefString(q.DeliveryAddress),
		Tax:             q.Tax.StringFixed(2),
		DiscountType:    string(q.DiscountType),
		DiscountValue:   q.DiscountValue.StringFixed(2),
		ShippingCharges: q.ShippingCharges.StringFixed(2),
		HandlingCharges: q.HandlingCharges.StringFixed(2),
		ValidFrom:       q.ValidFrom.Format(formDateLayout),
		ValidTill:       q.ValidTill.Format(formDateLayout),
		Priority:        string(q.Priority),
		Notes:           derefString(q.Notes),
	}
	for _, item := range q.Items {
		form.Items = append(form.Items, itemForm{Name: item.Name, Quantity: item.Quantity, Price: item.Price.StringFixed(2)})
	}
	return form
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func actorFromRequest(r *http.Request) Actor {
	actor := Actor{IP: r.RemoteAddr}
	if user := auth.UserFromContext(r.Context()); user != nil {
		actor.AdminID = &user.ID
	}
	return actor
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
