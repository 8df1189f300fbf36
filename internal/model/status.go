package model

// Status is the lifecycle state of an issued invoice
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusSent      Status = "Sent"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusCancelled Status = "Cancelled"
)

// transitions is the full set of legal lifecycle transitions.
// Cancelled is reachable from every non-cancelled state.
var transitions = map[Status]map[Status]bool{
	StatusDraft: {
		StatusSent:      true,
		StatusCancelled: true,
	},
	StatusSent: {
		StatusSent:      true, // pending status refresh, no-op
		StatusApproved:  true,
		StatusRejected:  true,
		StatusCancelled: true,
	},
	StatusApproved: {
		StatusCancelled: true,
	},
	StatusRejected: {
		StatusCancelled: true,
	},
	StatusCancelled: {},
}

// Valid reports whether s is a known lifecycle status
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is legal
func (s Status) CanTransition(next Status) bool {
	return transitions[s][next]
}

// Terminal reports whether no further gateway processing is expected
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// GatewayStatus is a normalized view of the authority's free-text status
type GatewayStatus string

const (
	GatewayStatusApproved GatewayStatus = "approved"
	GatewayStatusRejected GatewayStatus = "rejected"
	GatewayStatusPending  GatewayStatus = "pending"
	GatewayStatusUnknown  GatewayStatus = "unknown"
)

// knownGatewayStatuses maps authority status strings to normalized values.
// Anything not listed passes through verbatim as unknown.
var knownGatewayStatuses = map[string]GatewayStatus{
	"APPROVED":   GatewayStatusApproved,
	"ACCEPTED":   GatewayStatusApproved,
	"REJECTED":   GatewayStatusRejected,
	"DENIED":     GatewayStatusRejected,
	"PENDING":    GatewayStatusPending,
	"PROCESSING": GatewayStatusPending,
	"QUEUED":     GatewayStatusPending,
	"RECEIVED":   GatewayStatusPending,
}

// NormalizeGatewayStatus maps an authority status string to the known set,
// returning unknown for anything unrecognized
func NormalizeGatewayStatus(raw string) GatewayStatus {
	if s, ok := knownGatewayStatuses[raw]; ok {
		return s
	}
	return GatewayStatusUnknown
}
