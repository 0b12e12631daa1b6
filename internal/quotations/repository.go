package quotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quoteflow/quoteflow/internal/platform/db"
)

// Repository is the persistence boundary for quotations. Implementations
// must surface ErrNotFound and ErrConflict so the service can map them to
// workflow errors.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, q *Quotation) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	GetForUpdate(ctx context.Context, id int64) (*Quotation, error)
	GetByAccessToken(ctx context.Context, token string) (*Quotation, error)
	GetByAccessTokenForUpdate(ctx context.Context, token string) (*Quotation, error)
	Update(ctx context.Context, q *Quotation) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, req ListRequest) ([]Quotation, int, error)
	NextSequence(ctx context.Context, at time.Time) (int, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quotationColumns = `
	id, quotation_number, access_token, user_id, reviewed_by,
	customer_name, customer_company, customer_address, delivery_address,
	customer_contact, customer_email,
	items, subtotal::text, tax::text, discount_type, discount_value::text,
	discount_amount::text, shipping_charges::text, handling_charges::text, total::text,
	valid_from, valid_till, status, priority,
	admin_notes, notes, additional_requirements, preferred_response_timeline,
	reviewed_at, amended_at, original_values,
	customer_approved_at, customer_responded_at, customer_rejection_reason, customer_ip,
	created_at, updated_at`

func (r *repository) Create(ctx context.Context, q *Quotation) error {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO quotations (
			quotation_number, access_token, user_id,
			customer_name, customer_company, customer_address, delivery_address,
			customer_contact, customer_email,
			items, subtotal, tax, discount_type, discount_value, discount_amount,
			shipping_charges, handling_charges, total,
			valid_from, valid_till, status, priority,
			admin_notes, notes, additional_requirements, preferred_response_timeline
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		RETURNING id, created_at, updated_at`,
		q.QuotationNumber, q.AccessToken, q.UserID,
		q.CustomerName, q.CustomerCompany, q.CustomerAddress, q.DeliveryAddress,
		q.CustomerContact, q.CustomerEmail,
		string(items), q.Subtotal.StringFixed(2), q.Tax.StringFixed(2),
		string(q.DiscountType), q.DiscountValue.StringFixed(2), q.DiscountAmount.StringFixed(2),
		q.ShippingCharges.StringFixed(2), q.HandlingCharges.StringFixed(2), q.Total.StringFixed(2),
		q.ValidFrom, q.ValidTill, string(q.Status), string(q.Priority),
		q.AdminNotes, q.Notes, q.AdditionalRequirements, q.PreferredResponseTimeline,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConflict, constraintName(err))
		}
		return fmt.Errorf("insert quotation: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	return r.getWhere(ctx, "WHERE id = $1", "", id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return r.getWhere(ctx, "WHERE id = $1", "FOR UPDATE", id)
}

func (r *repository) GetByAccessToken(ctx context.Context, token string) (*Quotation, error) {
	return r.getWhere(ctx, "WHERE access_token = $1", "", token)
}

func (r *repository) GetByAccessTokenForUpdate(ctx context.Context, token string) (*Quotation, error) {
	return r.getWhere(ctx, "WHERE access_token = $1", "FOR UPDATE", token)
}

func (r *repository) getWhere(ctx context.Context, where, locking string, arg any) (*Quotation, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM quotations %s %s", quotationColumns, where, locking), arg)
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

func (r *repository) Update(ctx context.Context, q *Quotation) error {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	var original any
	if q.OriginalValues != nil {
		data, err := json.Marshal(q.OriginalValues)
		if err != nil {
			return fmt.Errorf("marshal original values: %w", err)
		}
		original = string(data)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			reviewed_by = $2,
			customer_name = $3, customer_company = $4, customer_address = $5,
			delivery_address = $6, customer_contact = $7, customer_email = $8,
			items = $9, subtotal = $10, tax = $11, discount_type = $12,
			discount_value = $13, discount_amount = $14, shipping_charges = $15,
			handling_charges = $16, total = $17,
			valid_from = $18, valid_till = $19, status = $20, priority = $21,
			admin_notes = $22, notes = $23, additional_requirements = $24,
			preferred_response_timeline = $25,
			reviewed_at = $26, amended_at = $27, original_values = $28,
			customer_approved_at = $29, customer_responded_at = $30,
			customer_rejection_reason = $31, customer_ip = $32,
			updated_at = NOW()
		WHERE id = $1`,
		q.ID, q.ReviewedBy,
		q.CustomerName, q.CustomerCompany, q.CustomerAddress,
		q.DeliveryAddress, q.CustomerContact, q.CustomerEmail,
		string(items), q.Subtotal.StringFixed(2), q.Tax.StringFixed(2), string(q.DiscountType),
		q.DiscountValue.StringFixed(2), q.DiscountAmount.StringFixed(2), q.ShippingCharges.StringFixed(2),
		q.HandlingCharges.StringFixed(2), q.Total.StringFixed(2),
		q.ValidFrom, q.ValidTill, string(q.Status), string(q.Priority),
		q.AdminNotes, q.Notes, q.AdditionalRequirements,
		q.PreferredResponseTimeline,
		q.ReviewedAt, q.AmendedAt, original,
		q.CustomerApprovedAt, q.CustomerRespondedAt,
		q.CustomerRejectionReason, q.CustomerIP,
	)
	if err != nil {
		return fmt.Errorf("update quotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quotations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Quotation, int, error) {
	where := "WHERE 1=1"
	var args []any
	argPos := 1

	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", argPos)
		args = append(args, string(*req.Priority))
		argPos++
	}
	if req.Search != "" {
		where += fmt.Sprintf(" AND (quotation_number ILIKE $%d OR customer_name ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM quotations %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		quotationColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	var result []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *q)
	}
	return result, total, rows.Err()
}

func (r *repository) NextSequence(ctx context.Context, at time.Time) (int, error) {
	start, end := MonthBounds(at)
	var maxSeq int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(NULLIF(substring(quotation_number from '([0-9]+)$'), '')::int), 0)
		FROM quotations
		WHERE created_at >= $1 AND created_at < $2`, start, end).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return maxSeq + 1, nil
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var (
		q                                                    Quotation
		userID, reviewedBy                                   pgtype.Int8
		company, address, delivery, contact, email           pgtype.Text
		itemsJSON, originalJSON                              []byte
		subtotal, tax, discountValue, discountAmount         string
		shipping, handling, total                            string
		discountType, status, priority                       string
		adminNotes, notes, additionalReqs, timeline          pgtype.Text
		reviewedAt, amendedAt, approvedAt, respondedAt       pgtype.Timestamptz
		rejectionReason, customerIP                          pgtype.Text
	)

	err := row.Scan(
		&q.ID, &q.QuotationNumber, &q.AccessToken, &userID, &reviewedBy,
		&q.CustomerName, &company, &address, &delivery, &contact, &email,
		&itemsJSON, &subtotal, &tax, &discountType, &discountValue,
		&discountAmount, &shipping, &handling, &total,
		&q.ValidFrom, &q.ValidTill, &status, &priority,
		&adminNotes, &notes, &additionalReqs, &timeline,
		&reviewedAt, &amendedAt, &originalJSON,
		&approvedAt, &respondedAt, &rejectionReason, &customerIP,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &q.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(originalJSON) > 0 {
		var snap Snapshot
		if err := json.Unmarshal(originalJSON, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal original values: %w", err)
		}
		q.OriginalValues = &snap
	}

	if q.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("parse subtotal: %w", err)
	}
	if q.Tax, err = decimal.NewFromString(tax); err != nil {
		return nil, fmt.Errorf("parse tax: %w", err)
	}
	if q.DiscountValue, err = decimal.NewFromString(discountValue); err != nil {
		return nil, fmt.Errorf("parse discount value: %w", err)
	}
	if q.DiscountAmount, err = decimal.NewFromString(discountAmount); err != nil {
		return nil, fmt.Errorf("parse discount amount: %w", err)
	}
	if q.ShippingCharges, err = decimal.NewFromString(shipping); err != nil {
		return nil, fmt.Errorf("parse shipping charges: %w", err)
	}
	if q.HandlingCharges, err = decimal.NewFromString(handling); err != nil {
		return nil, fmt.Errorf("parse handling charges: %w", err)
	}
	if q.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	q.DiscountType = DiscountType(discountType)
	q.Status = Status(status)
	q.Priority = Priority(priority)

	q.UserID = int8Ptr(userID)
	q.ReviewedBy = int8Ptr(reviewedBy)
	q.CustomerCompany = textPtr(company)
	q.CustomerAddress = textPtr(address)
	q.DeliveryAddress = textPtr(delivery)
	q.CustomerContact = textPtr(contact)
	q.CustomerEmail = textPtr(email)
	q.AdminNotes = textPtr(adminNotes)
	q.Notes = textPtr(notes)
	q.AdditionalRequirements = textPtr(additionalReqs)
	q.PreferredResponseTimeline = textPtr(timeline)
	q.ReviewedAt = timePtr(reviewedAt)
	q.AmendedAt = timePtr(amendedAt)
	q.CustomerApprovedAt = timePtr(approvedAt)
	q.CustomerRespondedAt = timePtr(respondedAt)
	q.CustomerRejectionReason = textPtr(rejectionReason)
	q.CustomerIP = textPtr(customerIP)

	return &q, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}

func textPtr(v pgtype.Text) *string {
	if !v.Valid {
		return nil
	}
	val := v.String
	return &val
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	val := v.Time
	return &val
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
