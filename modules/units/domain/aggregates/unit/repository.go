package unit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUnitNotFound = errors.New("unit not found")

// Repository is the tenant-scoped unit store. Implementations resolve the
// tenant from the context; unit ids from other tenants behave as absent.
type Repository interface {
	GetByID(ctx context.Context, unitID uuid.UUID) (Unit, error)
	GetAllForTenant(ctx context.Context) ([]Unit, error)
	GetChildren(ctx context.Context, parentUnitID uuid.UUID) ([]Unit, error)
	Create(ctx context.Context, u Unit) (Unit, error)
	Update(ctx context.Context, u Unit) (Unit, error)
	UpdateParent(ctx context.Context, unitID uuid.UUID, parentUnitID *uuid.UUID) (Unit, error)
	Delete(ctx context.Context, unitID uuid.UUID) error
	SetTag(ctx context.Context, unitID uuid.UUID, key, value string) error
	GetTags(ctx context.Context, unitID uuid.UUID) (map[string]string, error)
}

// AncestryRow is one closure-table row: unitID has ancestorUnitID on its
// parent chain, distance edges away.
type AncestryRow struct {
	UnitID         uuid.UUID
	AncestorUnitID uuid.UUID
	Distance       int
}

// AncestryRepository is the closure-table store. Rows for a unit are only
// ever replaced wholesale (delete-all, re-insert) inside a hierarchy
// transaction; partial updates are not part of the contract.
type AncestryRepository interface {
	// GetAncestors returns the full parent chain of unitID joined with the
	// unit rows, ordered by ascending distance.
	GetAncestors(ctx context.Context, unitID uuid.UUID) ([]AncestryEntry, error)
	// GetDescendants returns every unit that has unitID on its parent
	// chain, ordered by ascending distance.
	GetDescendants(ctx context.Context, unitID uuid.UUID) ([]AncestryEntry, error)
	// GetRows returns the raw closure rows owned by unitID.
	GetRows(ctx context.Context, unitID uuid.UUID) ([]AncestryRow, error)
	// GetDescendantRows returns raw rows keyed on ancestorUnitID, i.e. one
	// row per descendant with its distance to ancestorUnitID.
	GetDescendantRows(ctx context.Context, ancestorUnitID uuid.UUID) ([]AncestryRow, error)
	Exists(ctx context.Context, unitID, ancestorUnitID uuid.UUID) (bool, error)
	DeleteForUnit(ctx context.Context, unitID uuid.UUID) error
	InsertRows(ctx context.Context, rows []AncestryRow) error
	// LockTenantTree serializes hierarchy mutations for the caller's
	// tenant for the duration of the surrounding transaction.
	LockTenantTree(ctx context.Context) error
}
