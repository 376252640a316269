package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/modules/units/services"
)

func TestAssignmentService_AssignUserToUnit(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	created, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{
		UserID: userID,
	}, services.Options{})
	require.NoError(t, err)
	assert.Equal(t, team.UnitID(), created.UnitID())
	assert.Equal(t, userID, created.UserID())
	assert.Nil(t, created.EndDate())
	assert.True(t, created.IsActive())
	assert.False(t, created.StartDate().IsZero())

	assignedEvents := f.events.ofType(func(evt any) bool {
		_, ok := evt.(*assignment.UserAssignedEvent)
		return ok
	})
	require.Len(t, assignedEvents, 1)
	assert.Equal(t, userID, assignedEvents[0].(*assignment.UserAssignedEvent).UserID)
}

func TestAssignmentService_RejectsOrganizationalUnit(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	org := f.mustCreate(t, "Engineering", unit.TypeOrganizational, nil)
	userID := f.addUser(t)

	_, err := f.assignments.AssignUserToUnit(f.ctx, org.UnitID(), assignment.CreateDTO{
		UserID: userID,
	}, services.Options{})
	requireServiceCode(t, err, "UNIT_TYPE_INVALID")
}

func TestAssignmentService_RejectsUnknownUser(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)

	_, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{
		UserID: uuid.New(),
	}, services.Options{})
	requireServiceCode(t, err, "UNIT_USER_NOT_FOUND")
}

func TestAssignmentService_OneActivePerUnitAndUser(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	_, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)

	_, err = f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	requireServiceCode(t, err, "UNIT_ASSIGNMENT_CONFLICT")

	// a second unit can hold the same user concurrently
	other := f.mustCreate(t, "Bob's Team", unit.TypeIndividual, nil)
	_, err = f.assignments.AssignUserToUnit(f.ctx, other.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)
}

func TestAssignmentService_RejectsEndBeforeStart(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-24 * time.Hour)

	_, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{
		UserID:    userID,
		StartDate: &start,
		EndDate:   &end,
	}, services.Options{})
	requireServiceCode(t, err, "UNIT_DATE_ORDER")

	_, err = f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{
		UserID:    userID,
		StartDate: &start,
		EndDate:   &start,
	}, services.Options{})
	requireServiceCode(t, err, "UNIT_DATE_ORDER")
}

func TestAssignmentService_UnassignEndsNotDeletes(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	created, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)

	ended, err := f.assignments.UnassignUserFromUnit(f.ctx, team.UnitID(), userID, services.Options{})
	require.NoError(t, err)
	assert.Equal(t, created.AssignmentID(), ended.AssignmentID())
	require.NotNil(t, ended.EndDate())
	assert.False(t, ended.IsActive())

	// history survives the soft end
	history, err := f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), true)
	require.NoError(t, err)
	require.Len(t, history, 1)

	active, err := f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), false)
	require.NoError(t, err)
	assert.Empty(t, active)

	unassignedEvents := f.events.ofType(func(evt any) bool {
		_, ok := evt.(*assignment.UserUnassignedEvent)
		return ok
	})
	require.Len(t, unassignedEvents, 1)
}

func TestAssignmentService_UnassignWithoutActiveAssignment(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	_, err := f.assignments.UnassignUserFromUnit(f.ctx, team.UnitID(), userID, services.Options{})
	requireServiceCode(t, err, "UNIT_ASSIGNMENT_NOT_FOUND")
}

func TestAssignmentService_ReassignAfterUnassign(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	first, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)
	endedFirst, err := f.assignments.UnassignUserFromUnit(f.ctx, team.UnitID(), userID, services.Options{})
	require.NoError(t, err)

	second, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, first.AssignmentID(), second.AssignmentID())

	history, err := f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), true)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// the first row keeps its end date
	for _, a := range history {
		if a.AssignmentID() == first.AssignmentID() {
			require.NotNil(t, a.EndDate())
			assert.Equal(t, endedFirst.EndDate().Unix(), a.EndDate().Unix())
		}
	}
}

func TestAssignmentService_FutureEndDateMeansEnded(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	start := time.Now().UTC()
	future := start.Add(30 * 24 * time.Hour)
	bounded, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{
		UserID:    userID,
		StartDate: &start,
		EndDate:   &future,
	}, services.Options{})
	require.NoError(t, err)
	assert.False(t, bounded.IsActive())

	// an end date in the future still ends the row, so it does not
	// block a fresh open-ended assignment for the same user and unit
	open, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{})
	require.NoError(t, err)
	assert.NotEqual(t, bounded.AssignmentID(), open.AssignmentID())

	active, err := f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.AssignmentID(), active[0].AssignmentID())

	history, err := f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), true)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// unassign ends the open row and leaves the bounded end date alone
	ended, err := f.assignments.UnassignUserFromUnit(f.ctx, team.UnitID(), userID, services.Options{})
	require.NoError(t, err)
	assert.Equal(t, open.AssignmentID(), ended.AssignmentID())

	history, err = f.assignments.GetUnitAssignments(f.ctx, team.UnitID(), true)
	require.NoError(t, err)
	for _, a := range history {
		if a.AssignmentID() == bounded.AssignmentID() {
			require.NotNil(t, a.EndDate())
			assert.Equal(t, future.Unix(), a.EndDate().Unix())
		}
	}
}

func TestAssignmentService_SquelchEvents(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	team := f.mustCreate(t, "Alice's Team", unit.TypeIndividual, nil)
	userID := f.addUser(t)

	before := len(f.events.all())
	_, err := f.assignments.AssignUserToUnit(f.ctx, team.UnitID(), assignment.CreateDTO{UserID: userID}, services.Options{SquelchEvents: true})
	require.NoError(t, err)
	_, err = f.assignments.UnassignUserFromUnit(f.ctx, team.UnitID(), userID, services.Options{SquelchEvents: true})
	require.NoError(t, err)
	assert.Len(t, f.events.all(), before)
}
