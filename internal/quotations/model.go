package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the workflow state of a quotation.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
)

// Priority orders the admin review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DiscountType selects how discount_value is applied.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// LineItem is one row of a quotation's item list. Items are stored as a
// single JSONB blob on the quotation row, not as child rows.
type LineItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// Snapshot captures the commercial fields of a quotation before its first
// amendment. Monetary values are kept as fixed two-decimal strings so the
// stored JSON is stable across reads.
type Snapshot struct {
	Items           []LineItem `json:"items"`
	Subtotal        string     `json:"subtotal"`
	Tax             string     `json:"tax"`
	DiscountType    string     `json:"discount_type"`
	DiscountValue   string     `json:"discount_value"`
	DiscountAmount  string     `json:"discount_amount"`
	ShippingCharges string     `json:"shipping_charges"`
	HandlingCharges string     `json:"handling_charges"`
	Total           string     `json:"total"`
}

// Quotation is a priced proposal tracked through the approval workflow.
type Quotation struct {
	ID              int64  `json:"id"`
	QuotationNumber string `json:"quotation_number"`
	AccessToken     string `json:"access_token"`

	UserID     *int64 `json:"user_id,omitempty"`
	ReviewedBy *int64 `json:"reviewed_by,omitempty"`

	CustomerName    string  `json:"customer_name"`
	CustomerCompany *string `json:"customer_company,omitempty"`
	CustomerAddress *string `json:"customer_address,omitempty"`
	DeliveryAddress *string `json:"delivery_address,omitempty"`
	CustomerContact *string `json:"customer_contact,omitempty"`
	CustomerEmail   *string `json:"customer_email,omitempty"`

	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	DiscountType    DiscountType    `json:"discount_type"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingCharges decimal.Decimal `json:"shipping_charges"`
	HandlingCharges decimal.Decimal `json:"handling_charges"`
	Total           decimal.Decimal `json:"total"`

	ValidFrom time.Time `json:"valid_from"`
	ValidTill time.Time `json:"valid_till"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	AdminNotes                *string `json:"admin_notes,omitempty"`
	Notes                     *string `json:"notes,omitempty"`
	AdditionalRequirements    *string `json:"additional_requirements,omitempty"`
	PreferredResponseTimeline *string `json:"preferred_response_timeline,omitempty"`

	ReviewedAt              *time.Time `json:"reviewed_at,omitempty"`
	AmendedAt               *time.Time `json:"amended_at,omitempty"`
	OriginalValues          *Snapshot  `json:"original_values,omitempty"`
	CustomerApprovedAt      *time.Time `json:"customer_approved_at,omitempty"`
	CustomerRespondedAt     *time.Time `json:"customer_responded_at,omitempty"`
	CustomerRejectionReason *string    `json:"customer_rejection_reason,omitempty"`
	CustomerIP              *string    `json:"customer_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TakeSnapshot returns the quotation's current commercial fields.
func (q *Quotation) TakeSnapshot() *Snapshot {
	items := make([]LineItem, len(q.Items))
	copy(items, q.Items)
	return &Snapshot{
		Items:           items,
		Subtotal:        q.Subtotal.StringFixed(2),
		Tax:             q.Tax.StringFixed(2),
		DiscountType:    string(q.DiscountType),
		DiscountValue:   q.DiscountValue.StringFixed(2),
		DiscountAmount:  q.DiscountAmount.StringFixed(2),
		ShippingCharges: q.ShippingCharges.StringFixed(2),
		HandlingCharges: q.HandlingCharges.StringFixed(2),
		Total:           q.Total.StringFixed(2),
	}
}
