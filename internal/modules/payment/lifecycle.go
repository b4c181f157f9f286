// README: Payment settlement flow as code; tracked independently of the ride status.
package payment

import "waykel/internal/lifecycle"

type Status string

const (
	StatusPending  Status = "pending"
	StatusInvoiced Status = "invoiced"
	StatusPaid     Status = "paid"
	StatusSettled  Status = "settled"
	StatusDisputed Status = "disputed"
	StatusRefunded Status = "refunded"
)

// Disputes are a detour: they resolve back to paid, settled or refunded.
var machine = lifecycle.New("payment",
	lifecycle.Definition[Status]{Status: StatusPending, Label: "Awaiting Invoice", Next: []Status{StatusInvoiced, StatusRefunded}},
	lifecycle.Definition[Status]{Status: StatusInvoiced, Label: "Invoiced", Next: []Status{StatusPaid, StatusDisputed, StatusRefunded}},
	lifecycle.Definition[Status]{Status: StatusPaid, Label: "Paid", Next: []Status{StatusSettled, StatusDisputed, StatusRefunded}},
	lifecycle.Definition[Status]{Status: StatusSettled, Label: "Settled", Next: []Status{StatusDisputed}},
	lifecycle.Definition[Status]{Status: StatusDisputed, Label: "Disputed", Next: []Status{StatusPaid, StatusRefunded, StatusSettled}},
	lifecycle.Definition[Status]{Status: StatusRefunded, Label: "Refunded"},
)

func IsValidStatus(s string) bool {
	return machine.IsValid(s)
}

func ParseStatus(s string) (Status, bool) {
	return machine.Parse(s)
}

func IsValidTransition(from, to Status) bool {
	return machine.CanTransition(from, to)
}

// AssertTransition fails with lifecycle.ErrUnknownStatus or
// lifecycle.ErrIllegalTransition; rideID labels the error.
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
