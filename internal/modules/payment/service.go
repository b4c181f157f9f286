// README: Payment service; settlement moves are admin-only and versioned separately from the ride.
package payment

import (
	"context"
	"errors"
	"log"
	"time"

	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

var (
	ErrNotFound  = errors.New("payment not found")
	ErrConflict  = errors.New("payment state conflict")
	ErrForbidden = errors.New("payment changes require an admin")
)

const UpdatesChannel = "payment:updates"

type Repository interface {
	Get(ctx context.Context, rideID types.ID) (*Payment, error)
	UpdateStatus(ctx context.Context, rideID types.ID, from, to Status, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, rideID types.ID) ([]Event, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// Viewer decides whether actor may read the ride the payment belongs to.
type Viewer interface {
	CanView(ctx context.Context, rideID types.ID, actor permission.User) error
}

type Service struct {
	store     Repository
	viewer    Viewer
	publisher Publisher
	now       func() time.Time
}

func NewService(store Repository, viewer Viewer, publisher Publisher) *Service {
	return &Service{store: store, viewer: viewer, publisher: publisher, now: time.Now}
}

type GetQuery struct {
	RideID types.ID
	Actor  permission.User
}

type TransitionCommand struct {
	RideID types.ID
	To     string
	Note   string
	Actor  permission.User
}

type StatusUpdate struct {
	RideID  types.ID  `json:"ride_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	ActorID types.ID  `json:"actor_id"`
	At      time.Time `json:"at"`
}

func (s *Service) Get(ctx context.Context, q GetQuery) (*Payment, error) {
	if err := s.canView(ctx, q.RideID, q.Actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, q.RideID)
}

func (s *Service) Events(ctx context.Context, q GetQuery) ([]Event, error) {
	if err := s.canView(ctx, q.RideID, q.Actor); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, q.RideID)
}

func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Payment, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, ErrForbidden
	}
	p, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := AssertTransition(string(p.Status), cmd.To, string(p.RideID)); err != nil {
		return nil, err
	}
	to := Status(cmd.To)

	ok, err := s.store.UpdateStatus(ctx, p.RideID, p.Status, to, p.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	at := s.now()
	if err := s.store.AppendEvent(ctx, &Event{
		RideID:     p.RideID,
		FromStatus: p.Status,
		ToStatus:   to,
		ActorID:    cmd.Actor.ID,
		ActorRole:  cmd.Actor.Role,
		Note:       cmd.Note,
		CreatedAt:  at,
	}); err != nil {
		log.Printf("payment %s: append event %s -> %s: %v", p.RideID, p.Status, to, err)
	}
	if s.publisher != nil {
		msg := StatusUpdate{RideID: p.RideID, From: p.Status, To: to, ActorID: cmd.Actor.ID, At: at}
		if err := s.publisher.Publish(ctx, UpdatesChannel, msg); err != nil {
			log.Printf("payment %s: publish %s: %v", p.RideID, to, err)
		}
	}

	updated := *p
	updated.Status = to
	updated.Version++
	updated.UpdatedAt = at
	return &updated, nil
}

func (s *Service) canView(ctx context.Context, rideID types.ID, actor permission.User) error {
	if actor.IsAdmin() || s.viewer == nil {
		return nil
	}
	return s.viewer.CanView(ctx, rideID, actor)
}
