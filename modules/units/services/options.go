package services

import (
	"context"

	"github.com/google/uuid"
)

// Options carries per-call behavior flags. SquelchEvents suppresses domain
// event publication for the call, e.g. during bulk loading; event
// suppression is always explicit and per-call, never ambient.
type Options struct {
	SquelchEvents bool
}

// UserRecord is the slice of a user this module cares about.
type UserRecord struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
}

// UserLookup resolves users of the caller's tenant. The users themselves
// are owned by another module; this is a read-only collaborator.
type UserLookup interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, userID uuid.UUID) (UserRecord, error)
}
