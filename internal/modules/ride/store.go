// README: Ride store backed by PostgreSQL (rides, bids, transporters, ride_state_events).
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, created_by_id, transporter_id, assigned_driver_id, accepted_by_user_id,
	status, status_version, bidding_status, payment_status,
	pickup_address, drop_address, load_description, scheduled_at,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, created_by_id, transporter_id, assigned_driver_id, accepted_by_user_id,
			status, status_version, bidding_status, payment_status,
			pickup_address, drop_address, load_description, scheduled_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $14
		)`,
		string(r.ID),
		string(r.CreatedByID),
		r.TransporterID.Ptr(),
		r.AssignedDriverID.Ptr(),
		r.AcceptedByUserID.Ptr(),
		string(r.Status),
		r.StatusVersion,
		string(r.BiddingStatus),
		r.PaymentStatus,
		r.PickupAddress,
		r.DropAddress,
		r.LoadDescription,
		r.ScheduledAt,
		r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))

	var r Ride
	var transporterID, driverID, acceptedBy *string
	err := row.Scan(
		&r.ID, &r.CreatedByID, &transporterID, &driverID, &acceptedBy,
		&r.Status, &r.StatusVersion, &r.BiddingStatus, &r.PaymentStatus,
		&r.PickupAddress, &r.DropAddress, &r.LoadDescription, &r.ScheduledAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.TransporterID = idOf(transporterID)
	r.AssignedDriverID = idOf(driverID)
	r.AcceptedByUserID = idOf(acceptedBy)
	return &r, nil
}

// UpdateStatus moves the ride from -> to only if nobody else changed it since
// version was read. It reports false when the guard did not match.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, u Update) (bool, error) {
	var bidding *string
	if u.BiddingStatus != "" {
		v := string(u.BiddingStatus)
		bidding = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    status_version = status_version + 1,
		    assigned_driver_id = COALESCE($2, assigned_driver_id),
		    accepted_by_user_id = COALESCE($3, accepted_by_user_id),
		    transporter_id = COALESCE($4, transporter_id),
		    bidding_status = COALESCE($5, bidding_status),
		    updated_at = NOW()
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(to),
		u.AssignedDriverID.Ptr(),
		u.AcceptedByUserID.Ptr(),
		u.TransporterID.Ptr(),
		bidding,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, action, actor_id, actor_role, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.Action),
		e.ActorID.Ptr(),
		string(e.ActorRole),
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, action, actor_id, actor_role, created_at
		FROM ride_state_events
		WHERE ride_id = $1
		ORDER BY id ASC`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.Action, &actorID, &e.ActorRole, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = idOf(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateBid(ctx context.Context, b *Bid) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bids (
			id, ride_id, bidder_id, bidder_role, transporter_id, amount, currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(b.ID),
		string(b.RideID),
		string(b.BidderID),
		string(b.BidderRole),
		b.TransporterID.Ptr(),
		b.Amount.Amount,
		b.Amount.Currency,
		b.CreatedAt,
	)
	return err
}

func (s *Store) GetBid(ctx context.Context, rideID, bidID types.ID) (*Bid, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, ride_id, bidder_id, bidder_role, transporter_id, amount, currency, created_at
		FROM bids
		WHERE ride_id = $1 AND id = $2`, string(rideID), string(bidID),
	)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBidNotFound
	}
	return b, err
}

func (s *Store) ListBids(ctx context.Context, rideID types.ID) ([]Bid, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, bidder_id, bidder_role, transporter_id, amount, currency, created_at
		FROM bids
		WHERE ride_id = $1
		ORDER BY amount ASC, created_at ASC`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) GetTransporter(ctx context.Context, id types.ID) (*Transporter, error) {
	var t Transporter
	err := s.db.QueryRow(ctx, `SELECT id, user_id FROM transporters WHERE id = $1`, string(id)).Scan(&t.ID, &t.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanBid(row pgx.Row) (*Bid, error) {
	var b Bid
	var transporterID *string
	var role string
	var createdAt time.Time
	if err := row.Scan(&b.ID, &b.RideID, &b.BidderID, &role, &transporterID, &b.Amount.Amount, &b.Amount.Currency, &createdAt); err != nil {
		return nil, err
	}
	b.BidderRole = permission.Role(role)
	b.TransporterID = idOf(transporterID)
	b.CreatedAt = createdAt
	return &b, nil
}

func idOf(p *string) types.ID {
	if p == nil {
		return ""
	}
	return types.ID(*p)
}
