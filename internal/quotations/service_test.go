package quotations

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/quoteflow/internal/shared"
)

type memoryRepo struct {
	quotations map[int64]*Quotation
	nextID     int64

	createCalls    int
	failConflicts  int
	failNextSeqErr error

	now func() time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{quotations: make(map[int64]*Quotation), now: time.Now}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Create(ctx context.Context, q *Quotation) error {
	r.createCalls++
	if r.failConflicts > 0 {
		r.failConflicts--
		return ErrConflict
	}
	for _, existing := range r.quotations {
		if existing.QuotationNumber == q.QuotationNumber || existing.AccessToken == q.AccessToken {
			return ErrConflict
		}
	}
	r.nextID++
	q.ID = r.nextID
	q.CreatedAt = r.now()
	q.UpdatedAt = q.CreatedAt
	r.quotations[q.ID] = cloneQuotation(q)
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneQuotation(q), nil
}

func (r *memoryRepo) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepo) GetByAccessToken(ctx context.Context, token string) (*Quotation, error) {
	for _, q := range r.quotations {
		if q.AccessToken == token {
			return cloneQuotation(q), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) GetByAccessTokenForUpdate(ctx context.Context, token string) (*Quotation, error) {
	return r.GetByAccessToken(ctx, token)
}

func (r *memoryRepo) Update(ctx context.Context, q *Quotation) error {
	if _, ok := r.quotations[q.ID]; !ok {
		return ErrNotFound
	}
	q.UpdatedAt = time.Now()
	r.quotations[q.ID] = cloneQuotation(q)
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.quotations[id]; !ok {
		return ErrNotFound
	}
	delete(r.quotations, id)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, req ListRequest) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range r.quotations {
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *cloneQuotation(q))
	}
	return out, len(out), nil
}

func (r *memoryRepo) NextSequence(ctx context.Context, at time.Time) (int, error) {
	if r.failNextSeqErr != nil {
		return 0, r.failNextSeqErr
	}
	start, end := MonthBounds(at)
	maxSeq := 0
	for _, q := range r.quotations {
		if q.CreatedAt.Before(start) || !q.CreatedAt.Before(end) {
			continue
		}
		if seq := SequenceFromNumber(q.QuotationNumber); seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1, nil
}

func cloneQuotation(q *Quotation) *Quotation {
	clone := *q
	clone.Items = append([]LineItem(nil), q.Items...)
	if q.OriginalValues != nil {
		snapshot := *q.OriginalValues
		snapshot.Items = append([]LineItem(nil), q.OriginalValues.Items...)
		clone.OriginalValues = &snapshot
	}
	return &clone
}

var _ Repository = (*memoryRepo)(nil)

type memoryAudit struct {
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *memoryAudit) {
	t.Helper()
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, MessageBuilder{
		BaseURL:         "https://quotes.example.com",
		WhatsAppBaseURL: "https://wa.me",
		CurrencyPrefix:  "RM",
		CountryCode:     "60",
	})
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) }
	repo.now = func() time.Time { return svc.now() }
	return svc, repo, audit
}

func adminActor(id int64) Actor {
	return Actor{AdminID: &id, IP: "10.0.0.5"}
}

func validInput() QuotationInput {
	contact := "012-3456789"
	return QuotationInput{
		CustomerName:    "Alice",
		CustomerContact: &contact,
		Items: []LineItemInput{
			{Name: "Widget", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
		Subtotal:  decimal.RequireFromString("20.00"),
		Total:     decimal.RequireFromString("20.00"),
		ValidFrom: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		ValidTill: time.Date(2026, time.March, 24, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateAnonymousStartsPending(t *testing.T) {
	svc, _, _ := newTestService(t)

	q, err := svc.Create(context.Background(), validInput(), Actor{IP: "203.0.113.9"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, q.Status)
	assert.Nil(t, q.UserID)
	assert.Equal(t, "QT-202603-0001", q.QuotationNumber)
	assert.Len(t, q.AccessToken, 40)
	assert.True(t, q.Total.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, q.Items[0].Total.Equal(decimal.RequireFromString("20.00")))
}

func TestCreateByAdminStartsDraft(t *testing.T) {
	svc, _, _ := newTestService(t)

	q, err := svc.Create(context.Background(), validInput(), adminActor(7))
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, q.Status)
	require.NotNil(t, q.UserID)
	assert.Equal(t, int64(7), *q.UserID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := validInput()
	in.CustomerName = ""
	_, err := svc.Create(context.Background(), in, Actor{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	in = validInput()
	in.Items = nil
	_, err = svc.Create(context.Background(), in, Actor{})
	assert.True(t, IsValidation(err))

	in = validInput()
	in.ValidTill = in.ValidFrom
	_, err = svc.Create(context.Background(), in, Actor{})
	assert.True(t, IsValidation(err))
}

func TestCreateSequencesWithinMonth(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	assert.Equal(t, "QT-202603-0001", first.QuotationNumber)
	assert.Equal(t, "QT-202603-0002", second.QuotationNumber)

	svc.now = func() time.Time { return time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC) }
	third, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	assert.Equal(t, "QT-202604-0001", third.QuotationNumber)
}

func TestCreateRetriesOnceOnConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.failConflicts = 1

	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.createCalls)
	assert.NotEmpty(t, q.QuotationNumber)
}

func TestCreateSurfacesRepeatedConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.failConflicts = 2

	_, err := svc.Create(context.Background(), validInput(), Actor{})
	require.ErrorIs(t, err, ErrConflict)
}

func TestApproveSetsReviewFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), q.ID, nil, adminActor(3))
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, int64(3), *approved.ReviewedBy)
	assert.Nil(t, approved.AdminNotes)
}

func TestApproveTwiceFailsIdempotently(t *testing.T) {
	svc, repo, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(3))
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(3))
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestApproveDraftNotAllowed(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), adminActor(1))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, q.Status)

	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitMovesDraftToPending(t *testing.T) {
	svc, repo, audit := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), adminActor(1))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, q.Status)

	submitted, err := svc.Submit(context.Background(), q.ID, adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, submitted.Status)

	stored, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Contains(t, audit.actions(), "quotation.submit")

	// A submitted draft goes through review like any anonymous request.
	approved, err := svc.Approve(context.Background(), q.ID, nil, adminActor(2))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestSubmitOnlyFromDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	require.Equal(t, StatusPending, q.Status)

	_, err = svc.Submit(context.Background(), q.ID, adminActor(1))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectRequiresNotes(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), q.ID, "   ", adminActor(2))
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	rejected, err := svc.Reject(context.Background(), q.ID, "pricing out of range", adminActor(2))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.AdminNotes)
	assert.Equal(t, "pricing out of range", *rejected.AdminNotes)
}

func TestUpdateAllowedWhileEditable(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	in := validInput()
	in.CustomerName = "Alice Tan"
	updated, err := svc.Update(context.Background(), q.ID, in, adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, "Alice Tan", updated.CustomerName)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, q.AccessToken, updated.AccessToken)
}

func TestUpdateKeepsRejectedStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), q.ID, "too expensive", adminActor(1))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), q.ID, validInput(), adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)
}

func TestUpdateLockedAfterApproval(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), q.ID, validInput(), adminActor(1))
	require.ErrorIs(t, err, ErrLockedForEditing)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSendBuildsWhatsAppLink(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)

	result, err := svc.Send(context.Background(), q.ID, adminActor(1))
	require.NoError(t, err)

	assert.Equal(t, StatusSent, result.Quotation.Status)
	assert.True(t, strings.HasPrefix(result.WhatsAppLink, "https://wa.me/60123456789?text="))
	assert.Contains(t, result.WhatsAppLink, "RM20.00")
	assert.Contains(t, result.WhatsAppLink, q.AccessToken)
}

func TestSendRequiresApprovedStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), q.ID, adminActor(1))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSendWithoutContactFailsValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	in := validInput()
	in.CustomerContact = nil
	q, err := svc.Create(context.Background(), in, Actor{})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), q.ID, adminActor(1))
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	stored, err := repo.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestCustomerApproveRecordsResponse(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)

	accepted, err := svc.CustomerApprove(context.Background(), q.AccessToken, Actor{IP: "198.51.100.7"})
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.CustomerApprovedAt)
	require.NotNil(t, accepted.CustomerRespondedAt)
	require.NotNil(t, accepted.CustomerIP)
	assert.Equal(t, "198.51.100.7", *accepted.CustomerIP)

	_, err = svc.CustomerApprove(context.Background(), q.AccessToken, Actor{IP: "198.51.100.7"})
	require.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestCustomerApproveBeforeSendNotReady(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	_, err = svc.CustomerApprove(context.Background(), q.AccessToken, Actor{})
	require.ErrorIs(t, err, ErrNotReady)
}

func TestCustomerRejectReturnsToPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)

	returned, err := svc.CustomerReject(context.Background(), q.AccessToken, "please add delivery", Actor{IP: "198.51.100.7"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, returned.Status)
	require.NotNil(t, returned.CustomerRejectionReason)
	assert.Equal(t, "please add delivery", *returned.CustomerRejectionReason)
	require.NotNil(t, returned.CustomerRespondedAt)
	assert.Nil(t, returned.CustomerApprovedAt)
}

func TestResendOpensFreshResponseCycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)

	_, err := svc.CustomerReject(context.Background(), q.AccessToken, "please add delivery", Actor{IP: "198.51.100.7"})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)
	result, err := svc.Send(context.Background(), q.ID, adminActor(1))
	require.NoError(t, err)

	assert.Nil(t, result.Quotation.CustomerRespondedAt)
	assert.Nil(t, result.Quotation.CustomerRejectionReason)

	accepted, err := svc.CustomerApprove(context.Background(), q.AccessToken, Actor{IP: "198.51.100.7"})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
}

func TestCustomerRejectValidatesReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)

	_, err := svc.CustomerReject(context.Background(), q.AccessToken, "", Actor{})
	assert.True(t, IsValidation(err))

	_, err = svc.CustomerReject(context.Background(), q.AccessToken, strings.Repeat("x", 1001), Actor{})
	assert.True(t, IsValidation(err))
}

func TestCustomerRejectNotSentFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)

	_, err = svc.CustomerReject(context.Background(), q.AccessToken, "change it", Actor{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAmendAndSendSnapshotsOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)
	_, err := svc.CustomerApprove(context.Background(), q.AccessToken, Actor{IP: "198.51.100.7"})
	require.NoError(t, err)

	amendment := validInput()
	amendment.Items = []LineItemInput{
		{Name: "Widget", Quantity: 2, Price: decimal.RequireFromString("12.50")},
	}
	amendment.Subtotal = decimal.RequireFromString("25.00")
	amendment.Total = decimal.RequireFromString("25.00")

	result, err := svc.AmendAndSend(context.Background(), q.ID, amendment, adminActor(1))
	require.NoError(t, err)

	amended := result.Quotation
	assert.Equal(t, StatusSent, amended.Status)
	require.NotNil(t, amended.OriginalValues)
	assert.Equal(t, "20.00", amended.OriginalValues.Total)
	assert.Equal(t, "20.00", amended.OriginalValues.Subtotal)
	assert.Nil(t, amended.CustomerApprovedAt)
	assert.Nil(t, amended.CustomerRespondedAt)
	assert.Nil(t, amended.CustomerRejectionReason)
	require.NotNil(t, amended.AmendedAt)
	assert.True(t, amended.Total.Equal(decimal.RequireFromString("25.00")))
	assert.Contains(t, result.WhatsAppLink, "RM25.00")
	assert.Contains(t, result.WhatsAppLink, "updated")

	// A second amendment keeps the first snapshot.
	second := amendment
	second.Items = []LineItemInput{
		{Name: "Widget", Quantity: 3, Price: decimal.RequireFromString("10.00")},
	}
	second.Subtotal = decimal.RequireFromString("30.00")
	second.Total = decimal.RequireFromString("30.00")
	result, err = svc.AmendAndSend(context.Background(), q.ID, second, adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, "20.00", result.Quotation.OriginalValues.Total)
}

func TestAmendSnapshotJSONShape(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := sentQuotation(t, svc)

	result, err := svc.AmendAndSend(context.Background(), q.ID, validInput(), adminActor(1))
	require.NoError(t, err)

	raw, err := json.Marshal(result.Quotation.OriginalValues)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"total":"20.00"`)
	assert.Contains(t, string(raw), `"subtotal":"20.00"`)
}

func TestAccessTokenStableAcrossLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	token := q.AccessToken

	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)
	result, err := svc.Send(context.Background(), q.ID, adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, token, result.Quotation.AccessToken)

	amended, err := svc.AmendAndSend(context.Background(), q.ID, validInput(), adminActor(1))
	require.NoError(t, err)
	assert.Equal(t, token, amended.Quotation.AccessToken)
}

func TestDeleteAnyStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	q := sentQuotation(t, svc)
	_, err := svc.CustomerApprove(context.Background(), q.AccessToken, Actor{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), q.ID, adminActor(1)))
	_, err = repo.Get(context.Background(), q.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuditTrailCoversLifecycle(t *testing.T) {
	svc, _, audit := newTestService(t)
	q := sentQuotation(t, svc)
	_, err := svc.CustomerApprove(context.Background(), q.AccessToken, Actor{IP: "198.51.100.7"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"quotation.create",
		"quotation.approve",
		"quotation.send",
		"quotation.customer_approve",
	}, audit.actions())
	assert.Equal(t, "quotation", audit.entries[0].Entity)
}

// sentQuotation creates, approves and sends a quotation in one step.
func sentQuotation(t *testing.T, svc *Service) *Quotation {
	t.Helper()
	q, err := svc.Create(context.Background(), validInput(), Actor{})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), q.ID, nil, adminActor(1))
	require.NoError(t, err)
	result, err := svc.Send(context.Background(), q.ID, adminActor(1))
	require.NoError(t, err)
	return result.Quotation
}
