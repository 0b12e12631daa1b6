package quotations

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxRejectionReasonLength bounds the customer's change-request text.
const maxRejectionReasonLength = 1000

// Validate checks the structural tags plus the monetary and date rules that
// validator cannot express, and returns a ValidationError naming every
// offending field.
func (in *QuotationInput) Validate() error {
	fields := make(map[string]string)

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				fields[fieldName(fe)] = tagMessage(fe)
			}
		} else {
			return fmt.Errorf("validate input: %w", err)
		}
	}

	if !in.ValidFrom.IsZero() && !in.ValidTill.IsZero() && !in.ValidTill.After(in.ValidFrom) {
		fields["valid_till"] = "must be after valid_from"
	}

	for i, item := range in.Items {
		if item.Price.IsNegative() {
			fields[fmt.Sprintf("items[%d].price", i)] = "must not be negative"
		}
	}

	checkNonNegative(fields, "subtotal", in.Subtotal.IsNegative())
	checkNonNegative(fields, "tax", in.Tax.IsNegative())
	checkNonNegative(fields, "discount_value", in.DiscountValue.IsNegative())
	checkNonNegative(fields, "discount_amount", in.DiscountAmount.IsNegative())
	checkNonNegative(fields, "shipping_charges", in.ShippingCharges.IsNegative())
	checkNonNegative(fields, "handling_charges", in.HandlingCharges.IsNegative())
	checkNonNegative(fields, "total", in.Total.IsNegative())

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkNonNegative(fields map[string]string, name string, negative bool) {
	if negative {
		fields[name] = "must not be negative"
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func fieldName(fe validator.FieldError) string {
	// Namespace is like "QuotationInput.Items[0].Quantity"; drop the struct
	// prefix and lower-case to match the JSON field names.
	ns := fe.Namespace()
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		ns = ns[idx+1:]
	}
	return toSnake(ns)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 && s[i-1] != '.' && s[i-1] != '[' && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				out = append(out, '_')
			}
			out = append(out, c+('a'-'A'))
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
