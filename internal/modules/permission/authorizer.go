// README: Ride action authorizer (role, ownership and assignment rules per action).
package permission

import (
	"errors"
	"fmt"

	"waykel/internal/types"
)

var ErrActorViolation = errors.New("actor not permitted")

type ActorViolationError struct {
	Action Action
	UserID types.ID
	RideID types.ID
	Reason string
}

func (e *ActorViolationError) Error() string {
	return fmt.Sprintf("%s: user %s may not %s ride %s: %s", ErrActorViolation, e.UserID, e.Action, e.RideID, e.Reason)
}

func (e *ActorViolationError) Unwrap() error {
	return ErrActorViolation
}

const (
	rideStatusPending = "pending"
	rideStatusBidding = "bidding"
	biddingOpen       = "open"
)

// AssertRideActor returns nil when the caller may perform c.Action on the ride,
// and an *ActorViolationError otherwise. Admins pass every rule.
func AssertRideActor(c Context) error {
	reason := evaluate(c)
	if reason == "" {
		return nil
	}
	return &ActorViolationError{
		Action: c.Action,
		UserID: c.User.ID,
		RideID: c.Ride.ID,
		Reason: reason,
	}
}

func CanPerformRideAction(c Context) bool {
	return AssertRideActor(c) == nil
}

// DenialReason returns the reason and true when the action is denied.
func DenialReason(c Context) (string, bool) {
	var v *ActorViolationError
	if errors.As(AssertRideActor(c), &v) {
		return v.Reason, true
	}
	return "", false
}

// evaluate returns "" when allowed, otherwise the denial reason.
func evaluate(c Context) string {
	u, r := c.User, c.Ride
	if u.IsAdmin() {
		return ""
	}

	switch c.Action {
	case ActionAcceptBid:
		if isRideOwner(u, r) {
			return ""
		}
		return "only the customer who created the ride can accept a bid"

	case ActionAssignDriver:
		if u.Role == RoleTransporter && (matchesRideTransporter(u, r) || ownsTransporter(u, c.Transporter)) {
			return ""
		}
		return "only the ride's transporter can assign a driver"

	case ActionAcceptTrip, ActionStartTrip, ActionMarkPickup, ActionMarkDelivery, ActionCompleteTrip:
		if isAssignedDriver(u, r) || isSelfDrivingTransporter(u, r) {
			return ""
		}
		return "only the assigned driver or the ride's self-driving transporter can perform this trip action"

	case ActionCancelPreAccept:
		if isRideOwner(u, r) {
			return ""
		}
		return "only the customer who created the ride can cancel it before acceptance"

	case ActionCancelPostAccept:
		return "only an admin can cancel a ride after acceptance"

	case ActionViewTrip:
		if isRideOwner(u, r) || isAssignedDriver(u, r) || matchesRideTransporter(u, r) {
			return ""
		}
		if r.Status == rideStatusPending && isCarrier(u) {
			return ""
		}
		return "ride is not visible to this user"

	case ActionPlaceBid:
		if !isCarrier(u) {
			return "only transporters and drivers can bid"
		}
		if r.Status != rideStatusPending && r.Status != rideStatusBidding {
			return fmt.Sprintf("ride in status %q is not accepting bids", r.Status)
		}
		if r.BiddingStatus != biddingOpen {
			return "bidding is closed for this ride"
		}
		return ""
	}
	return fmt.Sprintf("unknown action %q", c.Action)
}

func isRideOwner(u User, r Ride) bool {
	return u.Role == RoleCustomer && u.ID != "" && r.CreatedByID == u.ID
}

func isAssignedDriver(u User, r Ride) bool {
	return u.Role == RoleDriver && u.ID != "" && r.AssignedDriverID == u.ID
}

func matchesRideTransporter(u User, r Ride) bool {
	return u.Role == RoleTransporter && u.TransporterID != "" && r.TransporterID == u.TransporterID
}

func isSelfDrivingTransporter(u User, r Ride) bool {
	return u.IsSelfDriver && matchesRideTransporter(u, r)
}

func ownsTransporter(u User, t *Transporter) bool {
	return t != nil && u.ID != "" && t.UserID == u.ID
}

func isCarrier(u User) bool {
	return u.Role == RoleTransporter || u.Role == RoleDriver
}
