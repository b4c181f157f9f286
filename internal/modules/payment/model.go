// README: Payment state of a ride and its audit events.
package payment

import (
	"time"

	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

type Payment struct {
	RideID    types.ID
	Status    Status
	Version   int
	UpdatedAt time.Time
}

type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    types.ID
	ActorRole  permission.Role
	Note       string
	CreatedAt  time.Time
}
