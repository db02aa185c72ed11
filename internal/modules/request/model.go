// README: ServiceRequest aggregate and status definitions.
package request

import (
	"time"

	"roadcall/internal/types"
)

type Status string

const (
	StatusNone              Status = "NONE"
	StatusBooked            Status = "BOOKED"
	StatusRequested         Status = "REQUESTED"
	StatusAccepted          Status = "ACCEPTED"
	StatusPaymentAuthorized Status = "PAYMENT_AUTHORIZED"
	StatusInRoute           Status = "IN_ROUTE"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusServicing         Status = "SERVICING"
	StatusInCompletion      Status = "IN_COMPLETION"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

type ServiceType string

const (
	ServiceTowing     ServiceType = "TOWING"
	ServiceBattery    ServiceType = "BATTERY"
	ServiceFlatTire   ServiceType = "FLAT_TIRE"
	ServiceFuel       ServiceType = "FUEL_DELIVERY"
	ServiceLockout    ServiceType = "LOCKOUT"
	ServiceMechanical ServiceType = "MECHANICAL"
)

func ValidServiceType(t ServiceType) bool {
	switch t {
	case ServiceTowing, ServiceBattery, ServiceFlatTire, ServiceFuel, ServiceLockout, ServiceMechanical:
		return true
	}
	return false
}

// ServiceRequest is one roadside-assistance job from creation to completion.
type ServiceRequest struct {
	ID                  types.ID
	ClientID            types.ID
	MechanicID          *types.ID
	ServiceType         ServiceType
	Status              Status
	StatusVersion       int
	Location            types.Coordinates
	TotalAmount         types.Money
	FirstTransactionID  *string
	SecondTransactionID *string
	PaymentHoldID       *string
	ArrivalCode         *string
	CompletionCode      *string
	StartTime           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Event records one status transition for audit/history.
type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the request state flow as code. The payment
// coordinator's upcharge advance to SERVICING is deliberately absent: it is
// the single sanctioned path outside this table and actor-driven operations
// must never take it.
var AllowedTransitions = map[Status][]Status{
	StatusBooked:            {StatusRequested, StatusCancelled},
	StatusRequested:         {StatusAccepted, StatusCancelled},
	StatusAccepted:          {StatusPaymentAuthorized, StatusRequested, StatusCancelled},
	StatusPaymentAuthorized: {StatusInRoute},
	StatusInRoute:           {StatusInProgress},
	StatusInProgress:        {StatusServicing},
	StatusServicing:         {StatusInCompletion},
	StatusInCompletion:      {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further mutation is permitted.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active statuses are every non-terminal state; used by the
// "current jobs" queries for clients and mechanics.
func Active(s Status) bool {
	return !Terminal(s) && s != StatusNone
}

// rank orders statuses along the main path so "at or past" checks read
// cleanly. BOOKED sits with REQUESTED since it activates into it.
var rank = map[Status]int{
	StatusBooked:            0,
	StatusRequested:         0,
	StatusAccepted:          1,
	StatusPaymentAuthorized: 2,
	StatusInRoute:           3,
	StatusInProgress:        4,
	StatusServicing:         5,
	StatusInCompletion:      6,
	StatusCompleted:         7,
}

// AtOrPast reports whether s has progressed at least as far as target on the
// main path. Terminal CANCELLED is never "past" anything.
func AtOrPast(s, target Status) bool {
	rs, ok1 := rank[s]
	rt, ok2 := rank[target]
	return ok1 && ok2 && rs >= rt
}
