package quotations

// Operation identifies a lifecycle mutation. The transition table below is
// the single authority on which operations a status permits; services never
// test status fields ad hoc.
type Operation string

const (
	OpUpdate          Operation = "update"
	OpSubmit          Operation = "submit"
	OpApprove         Operation = "approve"
	OpReject          Operation = "reject"
	OpSend            Operation = "send"
	OpAmendAndSend    Operation = "amend_and_send"
	OpCustomerApprove Operation = "customer_approve"
	OpCustomerReject  Operation = "customer_reject"
	OpDelete          Operation = "delete"
)

var allowedFrom = map[Operation][]Status{
	OpUpdate:          {StatusDraft, StatusPending, StatusRejected},
	OpSubmit:          {StatusDraft},
	OpApprove:         {StatusPending},
	OpReject:          {StatusPending},
	OpSend:            {StatusApproved},
	OpAmendAndSend:    {StatusDraft, StatusPending, StatusRejected, StatusApproved, StatusSent, StatusAccepted},
	OpCustomerApprove: {StatusSent},
	OpCustomerReject:  {StatusSent},
	OpDelete:          {StatusDraft, StatusPending, StatusRejected, StatusApproved, StatusSent, StatusAccepted},
}

// resultingStatus maps each status-changing operation to the status it
// produces. OpUpdate and OpDelete leave the status untouched.
var resultingStatus = map[Operation]Status{
	OpSubmit:          StatusPending,
	OpApprove:         StatusApproved,
	OpReject:          StatusRejected,
	OpSend:            StatusSent,
	OpAmendAndSend:    StatusSent,
	OpCustomerApprove: StatusAccepted,
	OpCustomerReject:  StatusPending,
}

// Allowed reports whether op may run while the quotation is in status.
func Allowed(op Operation, status Status) bool {
	for _, s := range allowedFrom[op] {
		if s == status {
			return true
		}
	}
	return false
}

// NextStatus returns the status op transitions to, or the current status for
// operations that do not move the workflow.
func NextStatus(op Operation, current Status) Status {
	if next, ok := resultingStatus[op]; ok {
		return next
	}
	return current
}

// ValidStatus reports whether s is one of the workflow states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusSent, StatusAccepted:
		return true
	}
	return false
}
