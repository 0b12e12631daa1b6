package quotations

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoContactNumber is returned when a notification link is requested for a
// quotation without a contact number.
var ErrNoContactNumber = errors.New("quotation has no customer contact number")

// MessageBuilder constructs customer-facing quote URLs and WhatsApp deep
// links. It performs no delivery; the handler redirects the admin's browser
// to the returned link.
type MessageBuilder struct {
	BaseURL         string
	WhatsAppBaseURL string
	CurrencyPrefix  string
	CountryCode     string
}

// QuoteURL returns the tokened customer link for a quotation.
func (b MessageBuilder) QuoteURL(accessToken string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/q/" + accessToken
}

// FormatAmount renders a monetary value with the configured currency prefix,
// e.g. RM20.00.
func (b MessageBuilder) FormatAmount(q *Quotation) string {
	return b.CurrencyPrefix + q.Total.StringFixed(2)
}

// Message composes the outbound text for a quotation. Amended quotations get
// updated wording so the customer knows a fresh response is expected.
func (b MessageBuilder) Message(q *Quotation, amended bool) string {
	var sb strings.Builder
	if amended {
		fmt.Fprintf(&sb, "Hi %s, your quotation %s has been updated.", q.CustomerName, q.QuotationNumber)
	} else {
		fmt.Fprintf(&sb, "Hi %s, your quotation %s is ready.", q.CustomerName, q.QuotationNumber)
	}
	fmt.Fprintf(&sb, " Total: %s.", b.FormatAmount(q))
	fmt.Fprintf(&sb, " Valid until %s.", q.ValidTill.Format("02 Jan 2006"))
	fmt.Fprintf(&sb, " View and respond here: %s", b.QuoteURL(q.AccessToken))
	return sb.String()
}

// WhatsAppLink builds the deep link https://<service>/<phone>?text=<message>.
func (b MessageBuilder) WhatsAppLink(q *Quotation, amended bool) (string, error) {
	if q.CustomerContact == nil || strings.TrimSpace(*q.CustomerContact) == "" {
		return "", ErrNoContactNumber
	}
	phone := NormalizePhone(*q.CustomerContact, b.CountryCode)
	if phone == "" {
		return "", ErrNoContactNumber
	}
	message := b.Message(q, amended)
	return fmt.Sprintf("%s/%s?text=%s", strings.TrimRight(b.WhatsAppBaseURL, "/"), phone, url.QueryEscape(message)), nil
}

// NormalizePhone reduces a stored contact number to a dialable international
// form: strip all non-digits; if the result does not already begin with the
// country code, drop a single leading trunk zero and prepend the code.
func NormalizePhone(raw, countryCode string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}
	if strings.HasPrefix(number, countryCode) {
		return number
	}
	number = strings.TrimPrefix(number, "0")
	return countryCode + number
}
