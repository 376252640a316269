package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/pkg/composables"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

// AssignmentService manages time-bounded memberships of users in
// individual units. At most one active assignment may exist per
// (unit, user) pair; unassigning soft-ends the row instead of deleting
// it, so the membership history stays queryable.
type AssignmentService struct {
	units       unit.Repository
	assignments assignment.Repository
	users       UserLookup
	publisher   eventbus.EventBus
}

func NewAssignmentService(
	units unit.Repository,
	assignments assignment.Repository,
	users UserLookup,
	publisher eventbus.EventBus,
) *AssignmentService {
	return &AssignmentService{
		units:       units,
		assignments: assignments,
		users:       users,
		publisher:   publisher,
	}
}

// AssignUserToUnit creates an assignment of the user to an individual
// unit. StartDate defaults to now; a provided EndDate must lie after the
// start. A unit that already holds an active assignment for the user
// rejects the call with a conflict.
func (s *AssignmentService) AssignUserToUnit(ctx context.Context, unitID uuid.UUID, dto assignment.CreateDTO, opts Options) (assignment.Assignment, error) {
	var events []any
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (assignment.Assignment, error) {
		u, err := fetchUnit(txCtx, s.units, unitID)
		if err != nil {
			return assignment.Assignment{}, err
		}
		if !u.IsIndividual() {
			return assignment.Assignment{}, invariantError(
				"UNIT_TYPE_INVALID",
				fmt.Sprintf("users can only be assigned to individual units, unit %s is organizational", unitID),
				nil,
			)
		}

		exists, err := s.users.Exists(txCtx, dto.UserID)
		if err != nil {
			return assignment.Assignment{}, err
		}
		if !exists {
			return assignment.Assignment{}, notFoundError("UNIT_USER_NOT_FOUND", fmt.Sprintf("user not found: %s", dto.UserID), nil)
		}

		if _, err := s.assignments.GetActive(txCtx, unitID, dto.UserID); err == nil {
			return assignment.Assignment{}, conflictError(
				"UNIT_ASSIGNMENT_CONFLICT",
				fmt.Sprintf("user %s already has an active assignment in unit %s", dto.UserID, unitID),
				nil,
			)
		} else if !errors.Is(err, assignment.ErrNoActiveAssignment) {
			return assignment.Assignment{}, err
		}

		startDate := time.Now().UTC()
		if dto.StartDate != nil {
			startDate = dto.StartDate.UTC()
		}
		if dto.EndDate != nil && !dto.EndDate.After(startDate) {
			return assignment.Assignment{}, invariantError("UNIT_DATE_ORDER", "end date must be after start date", nil)
		}

		created, err := s.assignments.Create(txCtx, assignment.New(u.TenantID(), unitID, dto.UserID, startDate, dto.EndDate))
		if err != nil {
			return assignment.Assignment{}, mapPgError(err)
		}
		events = append(events, assignment.NewUserAssignedEvent(created))
		return created, nil
	})
	if err != nil {
		return assignment.Assignment{}, err
	}

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": created.TenantID(),
		"unit_id":   unitID,
		"user_id":   dto.UserID,
	}).Info("assigned user to unit")

	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return created, nil
}

// UnassignUserFromUnit ends the user's active assignment in the unit by
// setting its end date to now. Historical rows are untouched, so the
// user can be re-assigned afterwards.
func (s *AssignmentService) UnassignUserFromUnit(ctx context.Context, unitID, userID uuid.UUID, opts Options) (assignment.Assignment, error) {
	var events []any
	ended, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (assignment.Assignment, error) {
		if _, err := fetchUnit(txCtx, s.units, unitID); err != nil {
			return assignment.Assignment{}, err
		}

		active, err := s.assignments.GetActive(txCtx, unitID, userID)
		if err != nil {
			if errors.Is(err, assignment.ErrNoActiveAssignment) {
				return assignment.Assignment{}, notFoundError(
					"UNIT_ASSIGNMENT_NOT_FOUND",
					fmt.Sprintf("no active assignment for user %s in unit %s", userID, unitID),
					err,
				)
			}
			return assignment.Assignment{}, err
		}

		ended, err := s.assignments.End(txCtx, active.AssignmentID(), time.Now().UTC())
		if err != nil {
			return assignment.Assignment{}, mapPgError(err)
		}
		events = append(events, assignment.NewUserUnassignedEvent(ended.TenantID(), ended.UnitID(), ended.UserID()))
		return ended, nil
	})
	if err != nil {
		return assignment.Assignment{}, err
	}

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": ended.TenantID(),
		"unit_id":   unitID,
		"user_id":   userID,
	}).Info("unassigned user from unit")

	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return ended, nil
}

// GetUnitAssignments lists the unit's assignments, active only by
// default or the full history when includeInactive is set.
func (s *AssignmentService) GetUnitAssignments(ctx context.Context, unitID uuid.UUID, includeInactive bool) ([]assignment.Assignment, error) {
	if _, err := fetchUnit(ctx, s.units, unitID); err != nil {
		return nil, err
	}
	return s.assignments.GetForUnit(ctx, unitID, includeInactive)
}
