package quotations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quoteflow/quoteflow/internal/shared"
)

// Actor identifies who invokes a lifecycle operation. AdminID is nil for
// anonymous callers; IP is the caller's network address.
type Actor struct {
	AdminID *int64
	IP      string
}

// IsAdmin reports whether the actor is an authenticated admin.
func (a Actor) IsAdmin() bool {
	return a.AdminID != nil
}

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SendResult carries the outcome of a send or amend-and-send operation.
type SendResult struct {
	Quotation    *Quotation
	WhatsAppLink string
}

// Service owns the quotation lifecycle: status transitions, numbering,
// access tokens, amendment snapshots and notification links. Every mutation
// runs in one transaction with the quotation row locked.
type Service struct {
	repo    Repository
	audit   AuditRecorder
	message MessageBuilder
	now     func() time.Time
}

// NewService constructs the lifecycle service. audit may be nil.
func NewService(repo Repository, audit AuditRecorder, message MessageBuilder) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		message: message,
		now:     time.Now,
	}
}

// Create validates input, assigns the quotation number and access token and
// persists the new quotation. Admin-created quotations start as draft,
// anonymous requests as pending. A number or token collision is retried once
// with freshly computed values before surfacing ErrConflict.
func (s *Service) Create(ctx context.Context, in QuotationInput, actor Actor) (*Quotation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	q := &Quotation{Status: StatusPending}
	if actor.IsAdmin() {
		q.Status = StatusDraft
		q.UserID = actor.AdminID
	}
	applyInput(q, in)

	// A failed INSERT aborts the surrounding transaction, so every attempt
	// gets its own transaction with freshly computed number and token.
	var created *Quotation
	for attempt := 0; ; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			seq, err := repo.NextSequence(ctx, s.now())
			if err != nil {
				return fmt.Errorf("compute sequence: %w", err)
			}
			q.QuotationNumber = FormatNumber(s.now(), seq)
			q.AccessToken = NewAccessToken()
			return repo.Create(ctx, q)
		})
		if err == nil {
			created = q
			break
		}
		if errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		return nil, err
	}

	s.record(ctx, actor, "quotation.create", created.ID, map[string]any{
		"quotation_number": created.QuotationNumber,
		"status":           string(created.Status),
	})
	return created, nil
}

// Update applies a full edit to a quotation that is still editable. Approved,
// sent and accepted quotations reject edits with ErrLockedForEditing; the
// status is left unchanged.
func (s *Service) Update(ctx context.Context, id int64, in QuotationInput, actor Actor) (*Quotation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(OpUpdate, q.Status) {
			return ErrLockedForEditing
		}
		applyInput(q, in)
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.update", updated.ID, nil)
	return updated, nil
}

// Submit moves an admin-created draft into the pending review queue.
func (s *Service) Submit(ctx context.Context, id int64, actor Actor) (*Quotation, error) {
	var submitted *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(OpSubmit, q.Status) {
			return transitionError(OpSubmit, q.Status)
		}
		q.Status = NextStatus(OpSubmit, q.Status)
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		submitted = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.submit", submitted.ID, nil)
	return submitted, nil
}

// Approve moves a pending quotation to approved and records the reviewer.
func (s *Service) Approve(ctx context.Context, id int64, adminNotes *string, actor Actor) (*Quotation, error) {
	var approved *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status == StatusApproved || q.Status == StatusSent {
			return ErrAlreadyApproved
		}
		if !Allowed(OpApprove, q.Status) {
			return transitionError(OpApprove, q.Status)
		}
		now := s.now()
		q.Status = NextStatus(OpApprove, q.Status)
		q.ReviewedBy = actor.AdminID
		q.ReviewedAt = &now
		if adminNotes != nil && strings.TrimSpace(*adminNotes) != "" {
			q.AdminNotes = adminNotes
		}
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		approved = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.approve", approved.ID, nil)
	return approved, nil
}

// Reject moves a pending quotation to rejected. Admin notes are mandatory so
// the requester learns why.
func (s *Service) Reject(ctx context.Context, id int64, adminNotes string, actor Actor) (*Quotation, error) {
	if strings.TrimSpace(adminNotes) == "" {
		return nil, NewValidationError("admin_notes", "is required when rejecting")
	}

	var rejected *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(OpReject, q.Status) {
			return transitionError(OpReject, q.Status)
		}
		now := s.now()
		q.Status = NextStatus(OpReject, q.Status)
		q.ReviewedBy = actor.AdminID
		q.ReviewedAt = &now
		q.AdminNotes = &adminNotes
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		rejected = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.reject", rejected.ID, nil)
	return rejected, nil
}

// Send marks an approved quotation as sent and returns the WhatsApp deep
// link for the admin's browser. No message is delivered server-side. Each
// send opens a fresh customer response cycle, so any response recorded on a
// previous sent version is cleared.
func (s *Service) Send(ctx context.Context, id int64, actor Actor) (*SendResult, error) {
	var result *SendResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(OpSend, q.Status) {
			return transitionError(OpSend, q.Status)
		}
		link, err := s.message.WhatsAppLink(q, false)
		if err != nil {
			return NewValidationError("customer_contact", "is required to send a notification")
		}
		q.Status = NextStatus(OpSend, q.Status)
		q.CustomerApprovedAt = nil
		q.CustomerRespondedAt = nil
		q.CustomerRejectionReason = nil
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		result = &SendResult{Quotation: q, WhatsAppLink: link}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.send", result.Quotation.ID, nil)
	return result, nil
}

// AmendAndSend applies a full update regardless of status, snapshots the
// pre-amendment commercial fields on the first amendment only, resets the
// customer response cycle and marks the quotation sent.
func (s *Service) AmendAndSend(ctx context.Context, id int64, in QuotationInput, actor Actor) (*SendResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var result *SendResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(OpAmendAndSend, q.Status) {
			return transitionError(OpAmendAndSend, q.Status)
		}

		// First-amendment-wins: an existing snapshot is never overwritten.
		if q.OriginalValues == nil {
			q.OriginalValues = q.TakeSnapshot()
		}

		applyInput(q, in)
		now := s.now()
		q.AmendedAt = &now
		q.Status = NextStatus(OpAmendAndSend, q.Status)
		q.CustomerApprovedAt = nil
		q.CustomerRespondedAt = nil
		q.CustomerRejectionReason = nil

		link, err := s.message.WhatsAppLink(q, true)
		if err != nil {
			return NewValidationError("customer_contact", "is required to send a notification")
		}
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		result = &SendResult{Quotation: q, WhatsAppLink: link}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.amend_and_send", result.Quotation.ID, nil)
	return result, nil
}

// CustomerApprove records the customer's acceptance of a sent quotation.
// Each sent version accepts at most one customer response.
func (s *Service) CustomerApprove(ctx context.Context, accessToken string, actor Actor) (*Quotation, error) {
	var accepted *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetByAccessTokenForUpdate(ctx, accessToken)
		if err != nil {
			return err
		}
		if err := customerPrecondition(q, OpCustomerApprove); err != nil {
			return err
		}
		now := s.now()
		q.Status = NextStatus(OpCustomerApprove, q.Status)
		q.CustomerApprovedAt = &now
		q.CustomerRespondedAt = &now
		if actor.IP != "" {
			ip := actor.IP
			q.CustomerIP = &ip
		}
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		accepted = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.customer_approve", accepted.ID, nil)
	return accepted, nil
}

// CustomerReject records a change request and returns the quotation to the
// admin review queue.
func (s *Service) CustomerReject(ctx context.Context, accessToken, reason string, actor Actor) (*Quotation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, NewValidationError("reason", "is required when requesting changes")
	}
	if len(reason) > maxRejectionReasonLength {
		return nil, NewValidationError("reason", fmt.Sprintf("must be at most %d characters", maxRejectionReasonLength))
	}

	var returned *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetByAccessTokenForUpdate(ctx, accessToken)
		if err != nil {
			return err
		}
		if err := customerPrecondition(q, OpCustomerReject); err != nil {
			return err
		}
		now := s.now()
		q.Status = NextStatus(OpCustomerReject, q.Status)
		q.CustomerRespondedAt = &now
		q.CustomerRejectionReason = &reason
		if actor.IP != "" {
			ip := actor.IP
			q.CustomerIP = &ip
		}
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		returned = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "quotation.customer_reject", returned.ID, nil)
	return returned, nil
}

// Delete removes a quotation unconditionally. Admin-only at the routing
// layer; any status is deletable.
func (s *Service) Delete(ctx context.Context, id int64, actor Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "quotation.delete", id, nil)
	return nil
}

// Get fetches a quotation by id.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// GetByAccessToken resolves the customer-facing view.
func (s *Service) GetByAccessToken(ctx context.Context, token string) (*Quotation, error) {
	return s.repo.GetByAccessToken(ctx, token)
}

// List returns quotations for the admin listing.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Quotation, int, error) {
	return s.repo.List(ctx, req)
}

// QuoteURL exposes the customer link for rendering.
func (s *Service) QuoteURL(q *Quotation) string {
	return s.message.QuoteURL(q.AccessToken)
}

// customerPrecondition enforces the single-response-per-sent-cycle rule.
func customerPrecondition(q *Quotation, op Operation) error {
	if q.CustomerRespondedAt != nil {
		return ErrAlreadyResponded
	}
	if !Allowed(op, q.Status) {
		return ErrNotReady
	}
	return nil
}

// applyInput copies every writable field onto q, recomputing line totals.
func applyInput(q *Quotation, in QuotationInput) {
	items := make([]LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, LineItem{
			Name:        item.Name,
			Description: derefString(item.Description),
			Quantity:    item.Quantity,
			Price:       item.Price,
			Total:       item.Price.Mul(intDecimal(item.Quantity)),
		})
	}
	q.Items = items

	q.CustomerName = in.CustomerName
	q.CustomerCompany = in.CustomerCompany
	q.CustomerAddress = in.CustomerAddress
	q.DeliveryAddress = in.DeliveryAddress
	q.CustomerContact = in.CustomerContact
	q.CustomerEmail = in.CustomerEmail

	q.Subtotal = in.Subtotal
	q.Tax = in.Tax
	q.DiscountType = in.DiscountType
	if q.DiscountType == "" {
		q.DiscountType = DiscountNone
	}
	q.DiscountValue = in.DiscountValue
	q.DiscountAmount = in.DiscountAmount
	q.ShippingCharges = in.ShippingCharges
	q.HandlingCharges = in.HandlingCharges
	q.Total = in.Total

	q.ValidFrom = in.ValidFrom
	q.ValidTill = in.ValidTill

	q.Priority = in.Priority
	if q.Priority == "" {
		q.Priority = PriorityMedium
	}

	q.Notes = in.Notes
	q.AdditionalRequirements = in.AdditionalRequirements
	q.PreferredResponseTimeline = in.PreferredResponseTimeline
}

func (s *Service) record(ctx context.Context, actor Actor, action string, id int64, meta map[string]any) {
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
		Entity:   "quotation",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intDecimal(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
