// Package approval holds the pure domain logic of the approval workflow:
// statuses, node parsing and normalization, approver name resolution, and
// the visibility rules that decide who may see a pending instance.
package approval

// Status is the lifecycle state of an approval instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var terminalStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

func (s Status) String() string {
	return string(s)
}

// Action is a recorded approval operation.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

// Valid reports whether the action is one an approver may submit.
// Cancel is reserved for the submitter and arrives through its own endpoint.
func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

func (a Action) String() string {
	return string(a)
}
