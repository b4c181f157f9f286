// README: Ride aggregate, bids and state events.
package ride

import (
	"time"

	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

type BiddingStatus string

const (
	BiddingOpen   BiddingStatus = "open"
	BiddingClosed BiddingStatus = "closed"
)

type Ride struct {
	ID               types.ID
	CreatedByID      types.ID
	TransporterID    types.ID
	AssignedDriverID types.ID
	AcceptedByUserID types.ID
	Status           Status
	StatusVersion    int
	BiddingStatus    BiddingStatus
	PaymentStatus    string
	PickupAddress    string
	DropAddress      string
	LoadDescription  string
	ScheduledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Snapshot is the view the authorizer evaluates.
func (r *Ride) Snapshot() permission.Ride {
	return permission.Ride{
		ID:               r.ID,
		Status:           string(r.Status),
		CreatedByID:      r.CreatedByID,
		TransporterID:    r.TransporterID,
		AssignedDriverID: r.AssignedDriverID,
		AcceptedByUserID: r.AcceptedByUserID,
		BiddingStatus:    string(r.BiddingStatus),
	}
}

type Transporter struct {
	ID     types.ID
	UserID types.ID
}

type Bid struct {
	ID         types.ID
	RideID     types.ID
	BidderID   types.ID
	BidderRole permission.Role
	// TransporterID is set when the bidder acts for a transporter.
	TransporterID types.ID
	Amount        types.Money
	CreatedAt     time.Time
}

type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	Action     permission.Action
	ActorID    types.ID
	ActorRole  permission.Role
	CreatedAt  time.Time
}

// Update carries the columns a transition may set besides status. Empty IDs
// leave the column unchanged.
type Update struct {
	AssignedDriverID types.ID
	AcceptedByUserID types.ID
	TransporterID    types.ID
	BiddingStatus    BiddingStatus
}
