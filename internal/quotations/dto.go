package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItemInput is one requested line item. Total is recomputed server-side
// as quantity times price.
type LineItemInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	Quantity    int             `json:"quantity" validate:"required,gte=1"`
	Price       decimal.Decimal `json:"price"`
}

// QuotationInput carries every writable field for create, update and
// amend-and-send. All three apply the same validation rules.
type QuotationInput struct {
	CustomerName    string  `json:"customer_name" validate:"required,max=200"`
	CustomerCompany *string `json:"customer_company,omitempty" validate:"omitempty,max=200"`
	CustomerAddress *string `json:"customer_address,omitempty" validate:"omitempty,max=500"`
	DeliveryAddress *string `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	CustomerContact *string `json:"customer_contact,omitempty" validate:"omitempty,max=50"`
	CustomerEmail   *string `json:"customer_email,omitempty" validate:"omitempty,email"`

	Items           []LineItemInput `json:"items" validate:"required,min=1,dive"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	DiscountType    DiscountType    `json:"discount_type" validate:"omitempty,oneof=none percentage fixed"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingCharges decimal.Decimal `json:"shipping_charges"`
	HandlingCharges decimal.Decimal `json:"handling_charges"`
	Total           decimal.Decimal `json:"total"`

	ValidFrom time.Time `json:"valid_from" validate:"required"`
	ValidTill time.Time `json:"valid_till" validate:"required"`

	Priority Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`

	Notes                     *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	AdditionalRequirements    *string `json:"additional_requirements,omitempty" validate:"omitempty,max=2000"`
	PreferredResponseTimeline *string `json:"preferred_response_timeline,omitempty" validate:"omitempty,max=200"`
}

// ComputeTotals derives subtotal, discount amount and total from the line
// items and charges. Used by the HTML form surface; API callers that supply
// their own totals keep them.
func (in *QuotationInput) ComputeTotals() {
	subtotal := decimal.Zero
	for _, item := range in.Items {
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	in.Subtotal = subtotal

	switch in.DiscountType {
	case DiscountPercentage:
		in.DiscountAmount = subtotal.Mul(in.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		in.DiscountAmount = in.DiscountValue
	default:
		in.DiscountAmount = decimal.Zero
	}

	in.Total = subtotal.Sub(in.DiscountAmount).Add(in.Tax).Add(in.ShippingCharges).Add(in.HandlingCharges)
}

// ListRequest filters the admin quotation listing.
type ListRequest struct {
	Status   *Status   `json:"status,omitempty"`
	Priority *Priority `json:"priority,omitempty"`
	Search   string    `json:"search,omitempty"`
	Limit    int       `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int       `json:"offset" validate:"gte=0"`
}
