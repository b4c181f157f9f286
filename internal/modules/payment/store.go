// README: Payment store; payment status lives on the rides row with its own version.
package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"waykel/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, rideID types.ID) (*Payment, error) {
	var p Payment
	err := s.db.QueryRow(ctx, `
		SELECT id, payment_status, payment_version, updated_at
		FROM rides
		WHERE id = $1`, string(rideID),
	).Scan(&p.RideID, &p.Status, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateStatus(ctx context.Context, rideID types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET payment_status = $1,
		    payment_version = payment_version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND payment_status = $3 AND payment_version = $4`,
		string(to),
		string(rideID),
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
		INSERT INTO payment_state_events (
			ride_id, from_status, to_status, actor_id, actor_role, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorID.Ptr(),
		string(e.ActorRole),
		e.Note,
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_id, actor_role, note, created_at
		FROM payment_state_events
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
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &actorID, &e.ActorRole, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			e.ActorID = types.ID(*actorID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
