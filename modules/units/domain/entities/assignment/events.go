package assignment

import (
	"time"

	"github.com/google/uuid"
)

type UserAssignedEvent struct {
	TenantID  uuid.UUID
	UnitID    uuid.UUID
	UserID    uuid.UUID
	StartDate time.Time
	EndDate   *time.Time
	Timestamp time.Time
}

func NewUserAssignedEvent(a Assignment) *UserAssignedEvent {
	return &UserAssignedEvent{
		TenantID:  a.TenantID(),
		UnitID:    a.UnitID(),
		UserID:    a.UserID(),
		StartDate: a.StartDate(),
		EndDate:   a.EndDate(),
		Timestamp: time.Now().UTC(),
	}
}

type UserUnassignedEvent struct {
	TenantID  uuid.UUID
	UnitID    uuid.UUID
	UserID    uuid.UUID
	Timestamp time.Time
}

func NewUserUnassignedEvent(tenantID, unitID, userID uuid.UUID) *UserUnassignedEvent {
	return &UserUnassignedEvent{
		TenantID:  tenantID,
		UnitID:    unitID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}
