// README: Caller, ride snapshot and action types evaluated by the ride authorizer.
package permission

import "waykel/internal/types"

type Role string

const (
	RoleCustomer    Role = "customer"
	RoleDriver      Role = "driver"
	RoleTransporter Role = "transporter"
	RoleAdmin       Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleCustomer, RoleDriver, RoleTransporter, RoleAdmin:
		return r, true
	}
	return "", false
}

type Action string

const (
	ActionAcceptBid        Action = "ACCEPT_BID"
	ActionAssignDriver     Action = "ASSIGN_DRIVER"
	ActionAcceptTrip       Action = "ACCEPT_TRIP"
	ActionStartTrip        Action = "START_TRIP"
	ActionMarkPickup       Action = "MARK_PICKUP"
	ActionMarkDelivery     Action = "MARK_DELIVERY"
	ActionCompleteTrip     Action = "COMPLETE_TRIP"
	ActionCancelPreAccept  Action = "CANCEL_PRE_ACCEPT"
	ActionCancelPostAccept Action = "CANCEL_POST_ACCEPT"
	ActionViewTrip         Action = "VIEW_TRIP"
	ActionPlaceBid         Action = "PLACE_BID"
)

var actions = []Action{
	ActionAcceptBid,
	ActionAssignDriver,
	ActionAcceptTrip,
	ActionStartTrip,
	ActionMarkPickup,
	ActionMarkDelivery,
	ActionCompleteTrip,
	ActionCancelPreAccept,
	ActionCancelPostAccept,
	ActionViewTrip,
	ActionPlaceBid,
}

func Actions() []Action {
	return append([]Action(nil), actions...)
}

func ParseAction(s string) (Action, bool) {
	for _, a := range actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// User is the authenticated caller.
type User struct {
	ID            types.ID
	Role          Role
	IsSuperAdmin  bool
	IsSelfDriver  bool
	TransporterID types.ID
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.IsSuperAdmin
}

// Ride is the subset of a ride record the rules look at. Status is the raw
// lifecycle value.
type Ride struct {
	ID               types.ID
	Status           string
	CreatedByID      types.ID
	TransporterID    types.ID
	AssignedDriverID types.ID
	AcceptedByUserID types.ID
	BiddingStatus    string
}

type Transporter struct {
	ID     types.ID
	UserID types.ID
}

// Context is built per check from records the caller already loaded.
type Context struct {
	User        User
	Ride        Ride
	Transporter *Transporter
	Action      Action
}
