package unit

import (
	"time"

	"github.com/google/uuid"
)

type CreatedEvent struct {
	TenantID     uuid.UUID
	UnitID       uuid.UUID
	Name         string
	Type         Type
	ParentUnitID *uuid.UUID
	Timestamp    time.Time
}

func NewCreatedEvent(u Unit) *CreatedEvent {
	return &CreatedEvent{
		TenantID:     u.TenantID(),
		UnitID:       u.UnitID(),
		Name:         u.Name(),
		Type:         u.Type(),
		ParentUnitID: u.ParentUnitID(),
		Timestamp:    time.Now().UTC(),
	}
}

type UpdatedEvent struct {
	TenantID      uuid.UUID
	UnitID        uuid.UUID
	ChangedFields []string
	Timestamp     time.Time
}

func NewUpdatedEvent(u Unit, changedFields []string) *UpdatedEvent {
	return &UpdatedEvent{
		TenantID:      u.TenantID(),
		UnitID:        u.UnitID(),
		ChangedFields: changedFields,
		Timestamp:     time.Now().UTC(),
	}
}

type DeletedEvent struct {
	TenantID  uuid.UUID
	UnitID    uuid.UUID
	Timestamp time.Time
}

func NewDeletedEvent(u Unit) *DeletedEvent {
	return &DeletedEvent{
		TenantID:  u.TenantID(),
		UnitID:    u.UnitID(),
		Timestamp: time.Now().UTC(),
	}
}

type AttachedToParentEvent struct {
	TenantID     uuid.UUID
	UnitID       uuid.UUID
	ParentUnitID uuid.UUID
	Timestamp    time.Time
}

func NewAttachedToParentEvent(tenantID, unitID, parentUnitID uuid.UUID) *AttachedToParentEvent {
	return &AttachedToParentEvent{
		TenantID:     tenantID,
		UnitID:       unitID,
		ParentUnitID: parentUnitID,
		Timestamp:    time.Now().UTC(),
	}
}

type DetachedFromParentEvent struct {
	TenantID             uuid.UUID
	UnitID               uuid.UUID
	PreviousParentUnitID uuid.UUID
	Timestamp            time.Time
}

func NewDetachedFromParentEvent(tenantID, unitID, previousParentUnitID uuid.UUID) *DetachedFromParentEvent {
	return &DetachedFromParentEvent{
		TenantID:             tenantID,
		UnitID:               unitID,
		PreviousParentUnitID: previousParentUnitID,
		Timestamp:            time.Now().UTC(),
	}
}
