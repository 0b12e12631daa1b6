package quotations

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemsRequest(values url.Values) *http.Request {
	return &http.Request{PostForm: values}
}

func TestParseItemsBlankPriceDefaultsToZero(t *testing.T) {
	errs := map[string]string{}
	forms, inputs := parseItems(itemsRequest(url.Values{
		"item_name":     {"Widget"},
		"item_quantity": {"2"},
		"item_price":    {"   "},
	}), errs)

	assert.Empty(t, errs)
	require.Len(t, inputs, 1)
	assert.True(t, inputs[0].Price.Equal(decimal.Zero))
	require.Len(t, forms, 1)
	assert.Equal(t, "0.00", forms[0].Price)
}

func TestParseItemsRejectsBadPrice(t *testing.T) {
	errs := map[string]string{}
	_, inputs := parseItems(itemsRequest(url.Values{
		"item_name":     {"Widget", "Gadget"},
		"item_quantity": {"1", "1"},
		"item_price":    {"abc", "-5"},
	}), errs)

	assert.Equal(t, "prices must be non-negative numbers", errs["items"])
	require.Len(t, inputs, 2)
}

func TestParseItemsSkipsBlankRowsAndRequiresOne(t *testing.T) {
	errs := map[string]string{}
	_, inputs := parseItems(itemsRequest(url.Values{
		"item_name":     {"  ", ""},
		"item_quantity": {"1", "1"},
		"item_price":    {"1.00", "2.00"},
	}), errs)

	assert.Empty(t, inputs)
	assert.Equal(t, "at least one item is required", errs["items"])
}
