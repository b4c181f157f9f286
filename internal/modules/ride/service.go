// README: Ride service; authorizes the caller, validates the transition, then persists it.
package ride

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

var (
	ErrNotFound       = errors.New("ride not found")
	ErrBidNotFound    = errors.New("bid not found")
	ErrConflict       = errors.New("ride state conflict")
	ErrBadRequest     = errors.New("bad request")
	ErrForbidden      = errors.New("forbidden")
	ErrActionMismatch = errors.New("action does not match requested status")
)

// UpdatesChannel is the pub/sub channel ride status changes are published on.
const UpdatesChannel = "ride:updates"

type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, u Update) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, rideID types.ID) ([]Event, error)
	CreateBid(ctx context.Context, b *Bid) error
	GetBid(ctx context.Context, rideID, bidID types.ID) (*Bid, error)
	ListBids(ctx context.Context, rideID types.ID) ([]Bid, error)
	GetTransporter(ctx context.Context, id types.ID) (*Transporter, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

type Service struct {
	store     Repository
	publisher Publisher
	now       func() time.Time
}

func NewService(store Repository, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher, now: time.Now}
}

type CreateCommand struct {
	Actor           permission.User
	PickupAddress   string
	DropAddress     string
	LoadDescription string
	ScheduledAt     *time.Time
}

type GetQuery struct {
	RideID types.ID
	Actor  permission.User
}

type TransitionCommand struct {
	RideID types.ID
	To     string
	// Action is optional; when empty it is derived from the target status.
	Action permission.Action
	Actor  permission.User
}

type PlaceBidCommand struct {
	RideID types.ID
	Actor  permission.User
	Amount types.Money
}

type AcceptBidCommand struct {
	RideID types.ID
	BidID  types.ID
	Actor  permission.User
}

type AssignDriverCommand struct {
	RideID   types.ID
	DriverID types.ID
	Actor    permission.User
}

type AuthorizeQuery struct {
	RideID types.ID
	Action permission.Action
	Actor  permission.User
}

// StatusUpdate is the message published after every committed transition.
type StatusUpdate struct {
	RideID  types.ID          `json:"ride_id"`
	From    Status            `json:"from"`
	To      Status            `json:"to"`
	Action  permission.Action `json:"action"`
	ActorID types.ID          `json:"actor_id"`
	At      time.Time         `json:"at"`
}

// ActionFor returns the action whose rule governs moving a ride from -> to.
// Listing management (reopen, schedule, open bidding) is owner-only, which is
// the CANCEL_PRE_ACCEPT predicate.
func ActionFor(from, to Status) (permission.Action, bool) {
	switch to {
	case StatusAccepted:
		return permission.ActionAcceptBid, true
	case StatusAssigned:
		return permission.ActionAssignDriver, true
	case StatusActive:
		return permission.ActionStartTrip, true
	case StatusPickupDone:
		return permission.ActionMarkPickup, true
	case StatusDeliveryDone:
		return permission.ActionMarkDelivery, true
	case StatusCompleted:
		return permission.ActionCompleteTrip, true
	case StatusCancelled:
		if IsPreAcceptance(from) {
			return permission.ActionCancelPreAccept, true
		}
		return permission.ActionCancelPostAccept, true
	case StatusPending, StatusBidding, StatusScheduled:
		return permission.ActionCancelPreAccept, true
	}
	return "", false
}

// actionFits reports whether an explicitly requested action may drive from -> to.
func actionFits(a permission.Action, from, to Status) bool {
	want, ok := ActionFor(from, to)
	if !ok {
		return false
	}
	if a == want {
		return true
	}
	if to == StatusActive && a == permission.ActionAcceptTrip {
		return true
	}
	// Admin-only post-accept cancel is a stricter rule; allow asking for it early.
	return to == StatusCancelled && a == permission.ActionCancelPostAccept
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.Actor.Role != permission.RoleCustomer && !cmd.Actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(cmd.PickupAddress) == "" || strings.TrimSpace(cmd.DropAddress) == "" {
		return nil, ErrBadRequest
	}
	now := s.now()
	status := StatusPending
	if cmd.ScheduledAt != nil {
		if !cmd.ScheduledAt.After(now) {
			return nil, ErrBadRequest
		}
		status = StatusScheduled
	}
	r := &Ride{
		ID:              types.NewID(),
		CreatedByID:     cmd.Actor.ID,
		Status:          status,
		BiddingStatus:   BiddingOpen,
		PaymentStatus:   "pending",
		PickupAddress:   cmd.PickupAddress,
		DropAddress:     cmd.DropAddress,
		LoadDescription: cmd.LoadDescription,
		ScheduledAt:     cmd.ScheduledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, r.ID, "", status, "", cmd.Actor)
	return r, nil
}

func (s *Service) Get(ctx context.Context, q GetQuery) (*Ride, error) {
	r, err := s.authorize(ctx, q.RideID, q.Actor, permission.ActionViewTrip)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Authorize is a dry run of the rule table against the stored ride.
func (s *Service) Authorize(ctx context.Context, q AuthorizeQuery) error {
	_, err := s.authorize(ctx, q.RideID, q.Actor, q.Action)
	return err
}

func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	to, ok := ParseStatus(cmd.To)
	if !ok {
		// Only callers who may see the ride learn that the target is malformed.
		if err := s.assertActor(ctx, r, cmd.Actor, permission.ActionViewTrip); err != nil {
			return nil, err
		}
		return nil, AssertTransition(string(r.Status), cmd.To, string(r.ID))
	}
	// accepted and assigned carry a bid or driver; they have their own commands.
	switch to {
	case StatusAccepted:
		return nil, fmt.Errorf("%w: accept a bid to move ride to %s", ErrActionMismatch, to)
	case StatusAssigned:
		return nil, fmt.Errorf("%w: assign a driver to move ride to %s", ErrActionMismatch, to)
	}

	action := cmd.Action
	if action == "" {
		action, _ = ActionFor(r.Status, to)
	} else if !actionFits(action, r.Status, to) {
		return nil, fmt.Errorf("%w: %s cannot move ride to %s", ErrActionMismatch, action, to)
	}
	// Who may act is checked before whether the move is legal.
	if err := s.assertActor(ctx, r, cmd.Actor, action); err != nil {
		return nil, err
	}
	if err := AssertTransition(string(r.Status), string(to), string(r.ID)); err != nil {
		return nil, err
	}

	var u Update
	if to == StatusCancelled {
		u.BiddingStatus = BiddingClosed
	} else if to == StatusBidding || to == StatusPending {
		u.BiddingStatus = BiddingOpen
	}
	return s.commit(ctx, r, to, action, cmd.Actor, u)
}

func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*Bid, error) {
	if !cmd.Amount.IsPositive() {
		return nil, ErrBadRequest
	}
	r, err := s.authorize(ctx, cmd.RideID, cmd.Actor, permission.ActionPlaceBid)
	if err != nil {
		return nil, err
	}
	// The first bid opens the auction.
	if r.Status == StatusPending {
		if _, err := s.commit(ctx, r, StatusBidding, permission.ActionPlaceBid, cmd.Actor, Update{}); err != nil {
			return nil, err
		}
	}
	b := &Bid{
		ID:            types.NewID(),
		RideID:        r.ID,
		BidderID:      cmd.Actor.ID,
		BidderRole:    cmd.Actor.Role,
		TransporterID: cmd.Actor.TransporterID,
		Amount:        cmd.Amount,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateBid(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBids(ctx context.Context, q GetQuery) ([]Bid, error) {
	r, err := s.store.Get(ctx, q.RideID)
	if err != nil {
		return nil, err
	}
	// Bid amounts are visible to the poster and admins only.
	if err := s.assertActor(ctx, r, q.Actor, permission.ActionAcceptBid); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, r.ID)
}

func (s *Service) AcceptBid(ctx context.Context, cmd AcceptBidCommand) (*Ride, error) {
	r, err := s.authorize(ctx, cmd.RideID, cmd.Actor, permission.ActionAcceptBid)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBid(ctx, r.ID, cmd.BidID)
	if err != nil {
		return nil, err
	}
	if err := AssertTransition(string(r.Status), string(StatusAccepted), string(r.ID)); err != nil {
		return nil, err
	}
	u := Update{AcceptedByUserID: b.BidderID, TransporterID: b.TransporterID, BiddingStatus: BiddingClosed}
	if b.BidderRole != permission.RoleDriver {
		return s.commit(ctx, r, StatusAccepted, permission.ActionAcceptBid, cmd.Actor, u)
	}

	// A driver winning the bid is the one who will drive, so the ride goes
	// straight on to assigned.
	u.AssignedDriverID = b.BidderID
	accepted, err := s.commit(ctx, r, StatusAccepted, permission.ActionAcceptBid, cmd.Actor, u)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, accepted, StatusAssigned, permission.ActionAssignDriver, cmd.Actor, Update{})
}

func (s *Service) AssignDriver(ctx context.Context, cmd AssignDriverCommand) (*Ride, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	r, err := s.authorize(ctx, cmd.RideID, cmd.Actor, permission.ActionAssignDriver)
	if err != nil {
		return nil, err
	}
	if err := AssertTransition(string(r.Status), string(StatusAssigned), string(r.ID)); err != nil {
		return nil, err
	}
	u := Update{AssignedDriverID: cmd.DriverID, BiddingStatus: BiddingClosed}
	return s.commit(ctx, r, StatusAssigned, permission.ActionAssignDriver, cmd.Actor, u)
}

// NextStatuses lists the successors of the ride's current status the caller is
// allowed to request.
func (s *Service) NextStatuses(ctx context.Context, q GetQuery) ([]Status, error) {
	r, err := s.authorize(ctx, q.RideID, q.Actor, permission.ActionViewTrip)
	if err != nil {
		return nil, err
	}
	tr, err := s.transporterFor(ctx, r)
	if err != nil {
		return nil, err
	}
	out := []Status{}
	for _, next := range NextStatuses(string(r.Status)) {
		action, ok := ActionFor(r.Status, next)
		if !ok {
			continue
		}
		c := permission.Context{User: q.Actor, Ride: r.Snapshot(), Transporter: tr, Action: action}
		if permission.CanPerformRideAction(c) {
			out = append(out, next)
		}
	}
	return out, nil
}

func (s *Service) Events(ctx context.Context, q GetQuery) ([]Event, error) {
	if _, err := s.authorize(ctx, q.RideID, q.Actor, permission.ActionViewTrip); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, q.RideID)
}

func (s *Service) authorize(ctx context.Context, id types.ID, actor permission.User, action permission.Action) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.assertActor(ctx, r, actor, action); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) assertActor(ctx context.Context, r *Ride, actor permission.User, action permission.Action) error {
	tr, err := s.transporterFor(ctx, r)
	if err != nil {
		return err
	}
	return permission.AssertRideActor(permission.Context{
		User:        actor,
		Ride:        r.Snapshot(),
		Transporter: tr,
		Action:      action,
	})
}

func (s *Service) transporterFor(ctx context.Context, r *Ride) (*permission.Transporter, error) {
	if r.TransporterID == "" {
		return nil, nil
	}
	t, err := s.store.GetTransporter(ctx, r.TransporterID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &permission.Transporter{ID: t.ID, UserID: t.UserID}, nil
}

func (s *Service) commit(ctx context.Context, r *Ride, to Status, action permission.Action, actor permission.User, u Update) (*Ride, error) {
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, to, r.StatusVersion, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	from := r.Status
	s.record(ctx, r.ID, from, to, action, actor)

	updated := *r
	updated.Status = to
	updated.StatusVersion++
	if u.AssignedDriverID != "" {
		updated.AssignedDriverID = u.AssignedDriverID
	}
	if u.AcceptedByUserID != "" {
		updated.AcceptedByUserID = u.AcceptedByUserID
	}
	if u.TransporterID != "" {
		updated.TransporterID = u.TransporterID
	}
	if u.BiddingStatus != "" {
		updated.BiddingStatus = u.BiddingStatus
	}
	return &updated, nil
}

// record appends the audit row and publishes the change. Both are best effort
// once the status write has committed.
func (s *Service) record(ctx context.Context, id types.ID, from, to Status, action permission.Action, actor permission.User) {
	at := s.now()
	if err := s.store.AppendEvent(ctx, &Event{
		RideID:     id,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		CreatedAt:  at,
	}); err != nil {
		log.Printf("ride %s: append event %s -> %s: %v", id, from, to, err)
	}
	if s.publisher == nil {
		return
	}
	msg := StatusUpdate{RideID: id, From: from, To: to, Action: action, ActorID: actor.ID, At: at}
	if err := s.publisher.Publish(ctx, UpdatesChannel, msg); err != nil {
		log.Printf("ride %s: publish %s: %v", id, to, err)
	}
}

// CanView reports whether actor may read the ride; it returns the same errors
// as Get.
func (s *Service) CanView(ctx context.Context, id types.ID, actor permission.User) error {
	_, err := s.authorize(ctx, id, actor, permission.ActionViewTrip)
	return err
}
