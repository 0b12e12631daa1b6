package quotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		op      Operation
		allowed []Status
	}{
		{OpUpdate, []Status{StatusDraft, StatusPending, StatusRejected}},
		{OpSubmit, []Status{StatusDraft}},
		{OpApprove, []Status{StatusPending}},
		{OpReject, []Status{StatusPending}},
		{OpSend, []Status{StatusApproved}},
		{OpAmendAndSend, []Status{StatusDraft, StatusPending, StatusRejected, StatusApproved, StatusSent, StatusAccepted}},
		{OpCustomerApprove, []Status{StatusSent}},
		{OpCustomerReject, []Status{StatusSent}},
		{OpDelete, []Status{StatusDraft, StatusPending, StatusRejected, StatusApproved, StatusSent, StatusAccepted}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			allowed := make(map[Status]bool, len(tt.allowed))
			for _, s := range tt.allowed {
				allowed[s] = true
			}
			for _, s := range AllStatuses {
				assert.Equal(t, allowed[s], Allowed(tt.op, s), "op %s from %s", tt.op, s)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, StatusPending, NextStatus(OpSubmit, StatusDraft))
	assert.Equal(t, StatusApproved, NextStatus(OpApprove, StatusPending))
	assert.Equal(t, StatusRejected, NextStatus(OpReject, StatusPending))
	assert.Equal(t, StatusSent, NextStatus(OpSend, StatusApproved))
	assert.Equal(t, StatusSent, NextStatus(OpAmendAndSend, StatusAccepted))
	assert.Equal(t, StatusAccepted, NextStatus(OpCustomerApprove, StatusSent))
	assert.Equal(t, StatusPending, NextStatus(OpCustomerReject, StatusSent))

	// Non-moving operations keep the current status.
	assert.Equal(t, StatusDraft, NextStatus(OpUpdate, StatusDraft))
	assert.Equal(t, StatusRejected, NextStatus(OpUpdate, StatusRejected))
}

func TestValidStatus(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus(Status("archived")))
	assert.False(t, ValidStatus(Status("")))
}
