package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment is a time-bounded binding of a user to an individual unit.
// A nil end date means the assignment is active. Ended assignments are
// kept forever; nothing in this package deletes them.
type Assignment struct {
	tenantID        uuid.UUID
	assignmentID    uuid.UUID
	unitID          uuid.UUID
	userID          uuid.UUID
	startDate       time.Time
	endDate         *time.Time
	extraAttributes map[string]any
	createdAt       time.Time
	updatedAt       time.Time
}

func New(tenantID, unitID, userID uuid.UUID, startDate time.Time, endDate *time.Time) Assignment {
	now := time.Now().UTC()
	return Assignment{
		tenantID:     tenantID,
		assignmentID: uuid.New(),
		unitID:       unitID,
		userID:       userID,
		startDate:    startDate,
		endDate:      endDate,
		createdAt:    now,
		updatedAt:    now,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	assignmentID uuid.UUID,
	unitID uuid.UUID,
	userID uuid.UUID,
	startDate time.Time,
	endDate *time.Time,
	extraAttributes map[string]any,
	createdAt time.Time,
	updatedAt time.Time,
) Assignment {
	return Assignment{
		tenantID:        tenantID,
		assignmentID:    assignmentID,
		unitID:          unitID,
		userID:          userID,
		startDate:       startDate,
		endDate:         endDate,
		extraAttributes: extraAttributes,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (a Assignment) TenantID() uuid.UUID     { return a.tenantID }
func (a Assignment) AssignmentID() uuid.UUID { return a.assignmentID }
func (a Assignment) UnitID() uuid.UUID       { return a.unitID }
func (a Assignment) UserID() uuid.UUID       { return a.userID }
func (a Assignment) StartDate() time.Time    { return a.startDate }
func (a Assignment) EndDate() *time.Time     { return a.endDate }
func (a Assignment) CreatedAt() time.Time    { return a.createdAt }
func (a Assignment) UpdatedAt() time.Time    { return a.updatedAt }
// IsActive reports whether the assignment is open-ended. A set end date
// means the assignment is ended even when the date lies in the future.
func (a Assignment) IsActive() bool { return a.endDate == nil }

func (a Assignment) ExtraAttributes() map[string]any {
	return a.extraAttributes
}

// Ended returns a copy with the end date set; used by the soft-end flow.
func (a Assignment) Ended(endDate time.Time) Assignment {
	a.endDate = &endDate
	return a
}

// CreateDTO is the caller-supplied part of a new assignment. A nil start
// date defaults to the current time.
type CreateDTO struct {
	UserID    uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}
