package unit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type distinguishes organizational groupings from individual person-slots.
// It is immutable after creation.
type Type string

const (
	TypeIndividual     Type = "individual"
	TypeOrganizational Type = "organizational"
)

func (t Type) IsValid() bool {
	return t == TypeIndividual || t == TypeOrganizational
}

// Unit is a node in a tenant's organizational tree. The parent pointer is
// an opaque id, never a reference; all traversal is id-indexed lookup.
type Unit struct {
	tenantID        uuid.UUID
	unitID          uuid.UUID
	name            string
	unitType        Type
	parentUnitID    *uuid.UUID
	description     string
	extraAttributes map[string]any
	createdAt       time.Time
	updatedAt       time.Time
}

type Option func(u *Unit)

func WithDescription(description string) Option {
	return func(u *Unit) {
		u.description = strings.TrimSpace(description)
	}
}

func WithExtraAttributes(attrs map[string]any) Option {
	return func(u *Unit) {
		u.extraAttributes = attrs
	}
}

// New creates a detached unit. The parent pointer is always nil here:
// attaching is a separate hierarchy operation so closure rows are written
// against an already-persisted unit id.
func New(tenantID uuid.UUID, name string, unitType Type, opts ...Option) Unit {
	now := time.Now().UTC()
	u := Unit{
		tenantID:  tenantID,
		unitID:    uuid.New(),
		name:      strings.TrimSpace(name),
		unitType:  unitType,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func Hydrate(
	tenantID uuid.UUID,
	unitID uuid.UUID,
	name string,
	unitType Type,
	parentUnitID *uuid.UUID,
	description string,
	extraAttributes map[string]any,
	createdAt time.Time,
	updatedAt time.Time,
) Unit {
	return Unit{
		tenantID:        tenantID,
		unitID:          unitID,
		name:            name,
		unitType:        unitType,
		parentUnitID:    parentUnitID,
		description:     description,
		extraAttributes: extraAttributes,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (u Unit) TenantID() uuid.UUID      { return u.tenantID }
func (u Unit) UnitID() uuid.UUID        { return u.unitID }
func (u Unit) Name() string             { return u.name }
func (u Unit) Type() Type               { return u.unitType }
func (u Unit) Description() string      { return u.description }
func (u Unit) CreatedAt() time.Time     { return u.createdAt }
func (u Unit) UpdatedAt() time.Time     { return u.updatedAt }
func (u Unit) IsZero() bool             { return u.unitID == uuid.Nil }
func (u Unit) IsIndividual() bool       { return u.unitType == TypeIndividual }
func (u Unit) ParentUnitID() *uuid.UUID { return u.parentUnitID }

func (u Unit) ExtraAttributes() map[string]any {
	return u.extraAttributes
}

func (u Unit) WithName(name string) Unit {
	u.name = strings.TrimSpace(name)
	return u
}

func (u Unit) WithDescription(description string) Unit {
	u.description = strings.TrimSpace(description)
	return u
}

func (u Unit) WithParentUnitID(parentUnitID *uuid.UUID) Unit {
	u.parentUnitID = parentUnitID
	return u
}

func (u Unit) WithExtraAttributes(attrs map[string]any) Unit {
	u.extraAttributes = attrs
	return u
}

// AncestryEntry pairs a unit on the ancestor (or descendant) chain with
// its edge distance from the queried unit. Distance 1 is a direct parent.
type AncestryEntry struct {
	Unit     Unit
	Distance int
}

// HierarchyNode is the in-memory materialization of a subtree, built from
// parent pointers rather than the closure table.
type HierarchyNode struct {
	Unit     Unit
	Children []HierarchyNode
}

type CreateDTO struct {
	Name            string
	Type            Type
	ParentUnitID    *uuid.UUID
	Description     string
	ExtraAttributes map[string]any
}

// UpdateDTO carries descriptive field changes only. Re-parenting is a
// hierarchy operation and is deliberately not representable here.
type UpdateDTO struct {
	Name        *string
	Description *string
}
