package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/quoteflow/quoteflow/internal/platform/httpx"
	"github.com/quoteflow/quoteflow/internal/quotations"
	"github.com/quoteflow/quoteflow/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxImportRows caps a single CSV upload.
const maxImportRows = 5000

// Service owns catalog business rules.
type Service struct {
	repo  Repository
	audit quotations.AuditRecorder
}

// NewService constructs a catalog service. audit may be nil.
func NewService(repo Repository, audit quotations.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns a filtered page of products with the total count.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Product, int, error) {
	if req.PerPage <= 0 {
		req.PerPage = 20
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	return s.repo.List(ctx, req)
}

// ListVisible returns every product shown on the public catalog.
func (s *Service) ListVisible(ctx context.Context) ([]Product, error) {
	products, _, err := s.repo.List(ctx, ListRequest{VisibleOnly: true})
	return products, err
}

// Get fetches a product by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and inserts a new product.
func (s *Service) Create(ctx context.Context, actor quotations.Actor, in ProductInput) (*Product, error) {
	p, err := s.buildProduct(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, httpx.ErrConflict) {
			return nil, quotations.NewValidationError("code", "is already in use")
		}
		return nil, err
	}
	s.record(ctx, actor, "product.create", p.ID, map[string]any{"code": p.Code})
	return p, nil
}

// Update validates and rewrites an existing product.
func (s *Service) Update(ctx context.Context, actor quotations.Actor, id int64, in ProductInput) (*Product, error) {
	p, err := s.buildProduct(in)
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, httpx.ErrConflict) {
			return nil, quotations.NewValidationError("code", "is already in use")
		}
		return nil, err
	}
	s.record(ctx, actor, "product.update", id, map[string]any{"code": p.Code})
	return p, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, actor quotations.Actor, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "product.delete", id, nil)
	return nil
}

// ToggleVisibility flips whether the product appears on the public catalog.
func (s *Service) ToggleVisibility(ctx context.Context, actor quotations.Actor, id int64) (*Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetVisibility(ctx, id, !p.IsVisible); err != nil {
		return nil, err
	}
	p.IsVisible = !p.IsVisible
	s.record(ctx, actor, "product.visibility", id, map[string]any{"visible": p.IsVisible})
	return p, nil
}

// ImportCSV reads product rows from a CSV stream and upserts them by code.
// Expected header: code, name, category, unit, price, description. Rows
// that fail to parse are skipped and reported, not fatal.
func (s *Service) ImportCSV(ctx context.Context, actor quotations.Actor, src io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, quotations.NewValidationError("file", "is not a readable CSV")
	}
	cols := columnIndex(header)
	if _, ok := cols["code"]; !ok {
		return nil, quotations.NewValidationError("file", "is missing the code column")
	}
	if _, ok := cols["name"]; !ok {
		return nil, quotations.NewValidationError("file", "is missing the name column")
	}

	result := &ImportResult{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line-1 > maxImportRows {
			return nil, quotations.NewValidationError("file", fmt.Sprintf("has more than %d rows", maxImportRows))
		}
		in, err := rowToInput(cols, record)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		existing, err := s.repo.GetByCode(ctx, in.Code)
		switch {
		case err == nil:
			in.ImageURL = stringValue(existing.ImageURL)
			in.IsVisible = existing.IsVisible
			if _, err := s.Update(ctx, actor, existing.ID, in); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			result.Updated++
		case errors.Is(err, httpx.ErrNotFound):
			in.IsVisible = true
			if _, err := s.Create(ctx, actor, in); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			result.Created++
		default:
			return nil, err
		}
	}

	s.record(ctx, actor, "product.import", 0, map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
	})
	return result, nil
}

func (s *Service) buildProduct(in ProductInput) (*Product, error) {
	in.Code = cleanField(in.Code)
	in.Name = cleanField(in.Name)
	in.Category = cleanField(in.Category)
	in.Unit = cleanField(in.Unit)
	in.Description = strings.TrimSpace(norm.NFC.String(in.Description))
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			field := strings.ToLower(fieldErrs[0].Field())
			return nil, quotations.NewValidationError(field, "is invalid")
		}
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, quotations.NewValidationError("price", "must not be negative")
	}
	p := &Product{
		Code:      in.Code,
		Name:      in.Name,
		Category:  in.Category,
		Unit:      in.Unit,
		Price:     in.Price,
		IsVisible: in.IsVisible,
	}
	if in.Description != "" {
		p.Description = &in.Description
	}
	if in.ImageURL != "" {
		p.ImageURL = &in.ImageURL
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, actor quotations.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor.AdminID != nil {
		actorID = *actor.AdminID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func rowToInput(cols map[string]int, record []string) (ProductInput, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	in := ProductInput{
		Code:        field("code"),
		Name:        field("name"),
		Category:    field("category"),
		Unit:        field("unit"),
		Description: field("description"),
	}
	if in.Code == "" {
		return in, errors.New("code is empty")
	}
	if in.Name == "" {
		return in, errors.New("name is empty")
	}
	if raw := field("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return in, fmt.Errorf("price %q is not a number", raw)
		}
		in.Price = price
	}
	return in, nil
}

// cleanField normalises user text to NFC and collapses surrounding space,
// so codes pasted from spreadsheets compare equal.
func cleanField(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parsePrice(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}
