package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/pkg/composables"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

// UnitWithAssignments is the read view of a unit joined with its
// assignment rows.
type UnitWithAssignments struct {
	Unit        unit.Unit
	Assignments []assignment.Assignment
}

// UnitService drives the unit lifecycle: create, update, delete, tags
// and the read views. Hierarchy placement is delegated to the
// HierarchyService so creating a unit with a parent and attaching an
// existing one share the same ancestry rewrite.
type UnitService struct {
	units       unit.Repository
	ancestry    unit.AncestryRepository
	assignments assignment.Repository
	hierarchy   *HierarchyService
	publisher   eventbus.EventBus
}

func NewUnitService(
	units unit.Repository,
	ancestry unit.AncestryRepository,
	assignments assignment.Repository,
	hierarchy *HierarchyService,
	publisher eventbus.EventBus,
) *UnitService {
	return &UnitService{
		units:       units,
		ancestry:    ancestry,
		assignments: assignments,
		hierarchy:   hierarchy,
		publisher:   publisher,
	}
}

// Create inserts a new unit and, when a parent is given, attaches it in
// the same transaction. A failed attach therefore rolls the insert back
// and no half-created unit survives.
func (s *UnitService) Create(ctx context.Context, dto unit.CreateDTO, opts Options) (unit.Unit, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return unit.Unit{}, newServiceError(http.StatusBadRequest, "UNIT_INVALID_BODY", "unit name is required", nil)
	}
	if !dto.Type.IsValid() {
		return unit.Unit{}, newServiceError(http.StatusBadRequest, "UNIT_INVALID_BODY", fmt.Sprintf("unknown unit type: %s", dto.Type), nil)
	}

	var events []any
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (unit.Unit, error) {
		tenantID, err := composables.UseTenantID(txCtx)
		if err != nil {
			return unit.Unit{}, err
		}

		if dto.ParentUnitID != nil {
			if _, err := fetchUnit(txCtx, s.units, *dto.ParentUnitID); err != nil {
				return unit.Unit{}, err
			}
		}

		created, err := s.units.Create(txCtx, unit.New(
			tenantID,
			name,
			dto.Type,
			unit.WithDescription(dto.Description),
			unit.WithExtraAttributes(dto.ExtraAttributes),
		))
		if err != nil {
			return unit.Unit{}, mapPgError(err)
		}

		if dto.ParentUnitID != nil {
			attached, attachEvents, err := s.hierarchy.attachUnitToParentTx(txCtx, created.UnitID(), dto.ParentUnitID)
			if err != nil {
				return unit.Unit{}, err
			}
			created = attached
			events = append(events, unit.NewCreatedEvent(created))
			events = append(events, attachEvents...)
		} else {
			events = append(events, unit.NewCreatedEvent(created))
		}
		return created, nil
	})
	if err != nil {
		return unit.Unit{}, err
	}

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": created.TenantID(),
		"unit_id":   created.UnitID(),
		"type":      created.Type(),
	}).Info("created unit")

	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return created, nil
}

// Update applies the name and description fields of the DTO. Fields left
// nil or equal to the stored value are skipped; when nothing changes,
// the stored unit is returned and no event is produced.
func (s *UnitService) Update(ctx context.Context, unitID uuid.UUID, dto unit.UpdateDTO, opts Options) (unit.Unit, error) {
	var events []any
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (unit.Unit, error) {
		existing, err := fetchUnit(txCtx, s.units, unitID)
		if err != nil {
			return unit.Unit{}, err
		}

		u := existing
		var changedFields []string
		if dto.Name != nil {
			name := strings.TrimSpace(*dto.Name)
			if name == "" {
				return unit.Unit{}, newServiceError(http.StatusBadRequest, "UNIT_INVALID_BODY", "unit name is required", nil)
			}
			if name != existing.Name() {
				u = u.WithName(name)
				changedFields = append(changedFields, "name")
			}
		}
		if dto.Description != nil && *dto.Description != existing.Description() {
			u = u.WithDescription(*dto.Description)
			changedFields = append(changedFields, "description")
		}

		if len(changedFields) == 0 {
			return existing, nil
		}

		updated, err := s.units.Update(txCtx, u)
		if err != nil {
			return unit.Unit{}, mapPgError(err)
		}
		events = append(events, unit.NewUpdatedEvent(updated, changedFields))
		return updated, nil
	})
	if err != nil {
		return unit.Unit{}, err
	}

	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return updated, nil
}

// Delete removes a unit together with its ancestry rows. Units that
// still have children or active assignments refuse deletion.
func (s *UnitService) Delete(ctx context.Context, unitID uuid.UUID, opts Options) error {
	var events []any
	err := composables.InTenantTx(ctx, func(txCtx context.Context) error {
		u, err := fetchUnit(txCtx, s.units, unitID)
		if err != nil {
			return err
		}

		children, err := s.units.GetChildren(txCtx, unitID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return invariantError(
				"UNIT_HAS_CHILDREN",
				fmt.Sprintf("cannot delete unit %s: it has %d child units", unitID, len(children)),
				nil,
			)
		}

		active, err := s.assignments.GetForUnit(txCtx, unitID, false)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return invariantError(
				"UNIT_HAS_ASSIGNMENTS",
				fmt.Sprintf("cannot delete unit %s: it has %d active assignments", unitID, len(active)),
				nil,
			)
		}

		if err := s.ancestry.DeleteForUnit(txCtx, unitID); err != nil {
			return err
		}
		if err := s.units.Delete(txCtx, unitID); err != nil {
			return mapPgError(err)
		}
		events = append(events, unit.NewDeletedEvent(u))
		return nil
	})
	if err != nil {
		return err
	}

	composables.UseLogger(ctx).WithField("unit_id", unitID).Info("deleted unit")

	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return nil
}

func (s *UnitService) GetByID(ctx context.Context, unitID uuid.UUID) (unit.Unit, error) {
	return fetchUnit(ctx, s.units, unitID)
}

func (s *UnitService) GetChildren(ctx context.Context, parentUnitID uuid.UUID) ([]unit.Unit, error) {
	if _, err := fetchUnit(ctx, s.units, parentUnitID); err != nil {
		return nil, err
	}
	return s.units.GetChildren(ctx, parentUnitID)
}

// GetUnitWithAssignments returns the unit together with its assignment
// rows, full history included when includeInactive is set.
func (s *UnitService) GetUnitWithAssignments(ctx context.Context, unitID uuid.UUID, includeInactive bool) (UnitWithAssignments, error) {
	u, err := fetchUnit(ctx, s.units, unitID)
	if err != nil {
		return UnitWithAssignments{}, err
	}
	rows, err := s.assignments.GetForUnit(ctx, unitID, includeInactive)
	if err != nil {
		return UnitWithAssignments{}, err
	}
	return UnitWithAssignments{Unit: u, Assignments: rows}, nil
}

// SetUnitTag upserts a key/value tag on the unit.
func (s *UnitService) SetUnitTag(ctx context.Context, unitID uuid.UUID, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return newServiceError(http.StatusBadRequest, "UNIT_INVALID_BODY", "tag key is required", nil)
	}
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		if _, err := fetchUnit(txCtx, s.units, unitID); err != nil {
			return err
		}
		if err := s.units.SetTag(txCtx, unitID, key, value); err != nil {
			return mapPgError(err)
		}
		return nil
	})
}

func (s *UnitService) GetUnitTags(ctx context.Context, unitID uuid.UUID) (map[string]string, error) {
	if _, err := fetchUnit(ctx, s.units, unitID); err != nil {
		return nil, err
	}
	return s.units.GetTags(ctx, unitID)
}
