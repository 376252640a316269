package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoActiveAssignment = errors.New("no active assignment found")

type Repository interface {
	// GetForUnit returns a unit's assignments, active only unless
	// includeInactive is set.
	GetForUnit(ctx context.Context, unitID uuid.UUID, includeInactive bool) ([]Assignment, error)
	// GetActive returns the single active assignment for the pair, or
	// ErrNoActiveAssignment.
	GetActive(ctx context.Context, unitID, userID uuid.UUID) (Assignment, error)
	Create(ctx context.Context, a Assignment) (Assignment, error)
	// End sets the end date on an assignment row and returns the ended
	// assignment. The row is never deleted.
	End(ctx context.Context, assignmentID uuid.UUID, endDate time.Time) (Assignment, error)
}
