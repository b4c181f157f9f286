// README: Ride status flow (diagram) as code, with guards used by every status write.
package ride

import "waykel/internal/lifecycle"

type Status string

const (
	StatusPending      Status = "pending"
	StatusBidding      Status = "bidding"
	StatusAccepted     Status = "accepted"
	StatusAssigned     Status = "assigned"
	StatusActive       Status = "active"
	StatusPickupDone   Status = "pickup_done"
	StatusDeliveryDone Status = "delivery_done"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusScheduled    Status = "scheduled"
)

// machine lists each status with its successors; the first successor is the
// primary next step.
var machine = lifecycle.New("ride",
	lifecycle.Definition[Status]{Status: StatusPending, Label: "Pending", Next: []Status{StatusBidding, StatusAssigned, StatusCancelled, StatusScheduled}},
	lifecycle.Definition[Status]{Status: StatusBidding, Label: "Open for Bidding", Next: []Status{StatusAccepted, StatusPending, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusAccepted, Label: "Bid Accepted", Next: []Status{StatusAssigned, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusAssigned, Label: "Driver Assigned", Next: []Status{StatusActive, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusActive, Label: "In Transit to Pickup", Next: []Status{StatusPickupDone, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusPickupDone, Label: "Picked Up", Next: []Status{StatusDeliveryDone, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusDeliveryDone, Label: "Delivered", Next: []Status{StatusCompleted, StatusCancelled}},
	lifecycle.Definition[Status]{Status: StatusCompleted, Label: "Completed"},
	lifecycle.Definition[Status]{Status: StatusCancelled, Label: "Cancelled"},
	lifecycle.Definition[Status]{Status: StatusScheduled, Label: "Scheduled", Next: []Status{StatusPending, StatusBidding, StatusAssigned, StatusCancelled}},
)

func IsValidStatus(s string) bool {
	return machine.IsValid(s)
}

func ParseStatus(s string) (Status, bool) {
	return machine.Parse(s)
}

// IsValidTransition checks the table only; both statuses are assumed valid.
func IsValidTransition(from, to Status) bool {
	return machine.CanTransition(from, to)
}

// AssertTransition fails with lifecycle.ErrUnknownStatus or
// lifecycle.ErrIllegalTransition. rideID only labels the error.
func AssertTransition(from, to, rideID string) error {
	return machine.Assert(from, to, rideID)
}

func CanTransitionTo(from, to string) bool {
	return machine.Allowed(from, to)
}

func NextStatuses(current string) []Status {
	return machine.Next(current)
}

func IsTerminal(s Status) bool {
	return machine.IsTerminal(s)
}

// IsPreAcceptance reports whether no bid or assignment has been committed yet.
func IsPreAcceptance(s Status) bool {
	return s == StatusPending || s == StatusScheduled || s == StatusBidding
}

func Statuses() []Status {
	return machine.Statuses()
}

func Label(s Status) string {
	return machine.Label(s)
}

func Labels() map[Status]string {
	return machine.Labels()
}

func Transitions() map[Status][]Status {
	return machine.Table()
}
