package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/pkg/composables"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

// HierarchyService owns the tree shape of a tenant's units and the
// materialized ancestry (closure) rows derived from it. Every mutation
// runs inside one transaction holding the tenant tree lock, so the closure
// table always reflects the parent pointers at commit time.
type HierarchyService struct {
	units     unit.Repository
	ancestry  unit.AncestryRepository
	publisher eventbus.EventBus
}

func NewHierarchyService(
	units unit.Repository,
	ancestry unit.AncestryRepository,
	publisher eventbus.EventBus,
) *HierarchyService {
	return &HierarchyService{
		units:     units,
		ancestry:  ancestry,
		publisher: publisher,
	}
}

// AttachUnitToParent re-parents a unit, or detaches it when parentUnitID
// is nil. Ancestry rows are rewritten for the unit and for its entire
// subtree in the same transaction; a detached event is produced when a
// previous parent existed and an attached event when a new parent is set.
func (s *HierarchyService) AttachUnitToParent(ctx context.Context, unitID uuid.UUID, parentUnitID *uuid.UUID, opts Options) (unit.Unit, error) {
	var events []any
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (unit.Unit, error) {
		u, evts, err := s.attachUnitToParentTx(txCtx, unitID, parentUnitID)
		if err != nil {
			return unit.Unit{}, err
		}
		events = evts
		return u, nil
	})
	if err != nil {
		return unit.Unit{}, err
	}
	if !opts.SquelchEvents {
		publishAll(s.publisher, events)
	}
	return updated, nil
}

// attachUnitToParentTx is the transaction-scoped body of
// AttachUnitToParent. It is also called by the unit lifecycle when a new
// unit is created with a parent, so it never opens its own transaction
// and returns its events for the caller to publish after commit.
func (s *HierarchyService) attachUnitToParentTx(ctx context.Context, unitID uuid.UUID, parentUnitID *uuid.UUID) (unit.Unit, []any, error) {
	if err := s.ancestry.LockTenantTree(ctx); err != nil {
		return unit.Unit{}, nil, err
	}

	u, err := fetchUnit(ctx, s.units, unitID)
	if err != nil {
		return unit.Unit{}, nil, err
	}

	if parentUnitID != nil {
		if *parentUnitID == unitID {
			return unit.Unit{}, nil, invariantError("UNIT_SELF_PARENT", "unit cannot be its own parent", nil)
		}
		if _, err := fetchUnit(ctx, s.units, *parentUnitID); err != nil {
			return unit.Unit{}, nil, err
		}
		inSubtree, err := s.ancestry.Exists(ctx, *parentUnitID, unitID)
		if err != nil {
			return unit.Unit{}, nil, err
		}
		if inSubtree {
			return unit.Unit{}, nil, invariantError("UNIT_CYCLE", "parent is a descendant of the unit being moved", nil)
		}
	}

	previousParentID := u.ParentUnitID()

	updated, err := s.units.UpdateParent(ctx, unitID, parentUnitID)
	if err != nil {
		return unit.Unit{}, nil, mapPgError(err)
	}

	// Capture the subtree before any closure rewrite: each descendant's
	// rows at distance <= its distance to the moved unit are internal to
	// the subtree and stay valid across the move.
	subtree, err := s.ancestry.GetDescendantRows(ctx, unitID)
	if err != nil {
		return unit.Unit{}, nil, err
	}
	oldRows := make(map[uuid.UUID][]unit.AncestryRow, len(subtree))
	for _, row := range subtree {
		rows, err := s.ancestry.GetRows(ctx, row.UnitID)
		if err != nil {
			return unit.Unit{}, nil, err
		}
		oldRows[row.UnitID] = rows
	}

	if err := s.ancestry.DeleteForUnit(ctx, unitID); err != nil {
		return unit.Unit{}, nil, err
	}

	var newChain []unit.AncestryRow
	if parentUnitID != nil {
		newChain = append(newChain, unit.AncestryRow{UnitID: unitID, AncestorUnitID: *parentUnitID, Distance: 1})
		parentRows, err := s.ancestry.GetRows(ctx, *parentUnitID)
		if err != nil {
			return unit.Unit{}, nil, err
		}
		for _, row := range parentRows {
			newChain = append(newChain, unit.AncestryRow{
				UnitID:         unitID,
				AncestorUnitID: row.AncestorUnitID,
				Distance:       row.Distance + 1,
			})
		}
		if err := s.ancestry.InsertRows(ctx, newChain); err != nil {
			return unit.Unit{}, nil, mapPgError(err)
		}
	}

	for _, descRow := range subtree {
		descID := descRow.UnitID
		k := descRow.Distance
		rows := make([]unit.AncestryRow, 0, k+len(newChain))
		for _, old := range oldRows[descID] {
			if old.Distance <= k {
				rows = append(rows, old)
			}
		}
		for _, c := range newChain {
			rows = append(rows, unit.AncestryRow{
				UnitID:         descID,
				AncestorUnitID: c.AncestorUnitID,
				Distance:       c.Distance + k,
			})
		}
		if err := s.ancestry.DeleteForUnit(ctx, descID); err != nil {
			return unit.Unit{}, nil, err
		}
		if err := s.ancestry.InsertRows(ctx, rows); err != nil {
			return unit.Unit{}, nil, mapPgError(err)
		}
	}

	var events []any
	if previousParentID != nil {
		events = append(events, unit.NewDetachedFromParentEvent(u.TenantID(), unitID, *previousParentID))
	}
	if parentUnitID != nil {
		events = append(events, unit.NewAttachedToParentEvent(u.TenantID(), unitID, *parentUnitID))
	}

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id": u.TenantID(),
		"unit_id":   unitID,
		"parent_id": parentUnitID,
		"subtree":   len(subtree),
	}).Info("rewrote unit ancestry")

	return updated, events, nil
}

// GetUnitAncestry returns the unit's full parent chain ordered by
// ascending distance (direct parent first).
func (s *HierarchyService) GetUnitAncestry(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	if _, err := fetchUnit(ctx, s.units, unitID); err != nil {
		return nil, err
	}
	return s.ancestry.GetAncestors(ctx, unitID)
}

func (s *HierarchyService) GetUnitDescendants(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	if _, err := fetchUnit(ctx, s.units, unitID); err != nil {
		return nil, err
	}
	return s.ancestry.GetDescendants(ctx, unitID)
}

// IsUnitAncestor reports whether ancestorUnitID is on unitID's parent
// chain. A unit is never its own ancestor.
func (s *HierarchyService) IsUnitAncestor(ctx context.Context, unitID, ancestorUnitID uuid.UUID) (bool, error) {
	if _, err := fetchUnit(ctx, s.units, unitID); err != nil {
		return false, err
	}
	if _, err := fetchUnit(ctx, s.units, ancestorUnitID); err != nil {
		return false, err
	}
	if unitID == ancestorUnitID {
		return false, nil
	}
	return s.ancestry.Exists(ctx, unitID, ancestorUnitID)
}

func (s *HierarchyService) IsUnitDescendant(ctx context.Context, unitID, descendantUnitID uuid.UUID) (bool, error) {
	return s.IsUnitAncestor(ctx, descendantUnitID, unitID)
}

// GetUnitHierarchy materializes the tenant's forest in memory from parent
// pointers. With a non-nil root it returns that unit's subtree as a
// single-element slice; with nil it returns one tree per parentless unit.
// Sibling order is by name (id as tiebreak) so repeated calls over the
// same data yield structurally identical forests.
func (s *HierarchyService) GetUnitHierarchy(ctx context.Context, rootUnitID *uuid.UUID) ([]unit.HierarchyNode, error) {
	if rootUnitID != nil {
		if _, err := fetchUnit(ctx, s.units, *rootUnitID); err != nil {
			return nil, err
		}
	}

	all, err := s.units.GetAllForTenant(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]unit.Unit, len(all))
	children := make(map[uuid.UUID][]uuid.UUID, len(all))
	for _, u := range all {
		byID[u.UnitID()] = u
	}
	for _, u := range all {
		if p := u.ParentUnitID(); p != nil {
			children[*p] = append(children[*p], u.UnitID())
		}
	}

	sortSiblings := func(ids []uuid.UUID) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := byID[ids[i]], byID[ids[j]]
			if a.Name() != b.Name() {
				return a.Name() < b.Name()
			}
			return a.UnitID().String() < b.UnitID().String()
		})
	}

	var build func(id uuid.UUID) unit.HierarchyNode
	build = func(id uuid.UUID) unit.HierarchyNode {
		childIDs := children[id]
		sortSiblings(childIDs)
		node := unit.HierarchyNode{Unit: byID[id]}
		for _, childID := range childIDs {
			node.Children = append(node.Children, build(childID))
		}
		return node
	}

	if rootUnitID != nil {
		return []unit.HierarchyNode{build(*rootUnitID)}, nil
	}

	var rootIDs []uuid.UUID
	for _, u := range all {
		if u.ParentUnitID() == nil {
			rootIDs = append(rootIDs, u.UnitID())
		}
	}
	sortSiblings(rootIDs)

	forest := make([]unit.HierarchyNode, 0, len(rootIDs))
	for _, id := range rootIDs {
		forest = append(forest, build(id))
	}
	return forest, nil
}

// FindUnitPath returns the ordered unit path between two units, walking
// up from fromUnitID to the lowest common ancestor and then down to
// toUnitID. The result is nil (with no error) when the units live in
// disjoint trees of the same tenant.
func (s *HierarchyService) FindUnitPath(ctx context.Context, fromUnitID, toUnitID uuid.UUID) ([]unit.Unit, error) {
	fromUnit, err := fetchUnit(ctx, s.units, fromUnitID)
	if err != nil {
		return nil, err
	}
	toUnit, err := fetchUnit(ctx, s.units, toUnitID)
	if err != nil {
		return nil, err
	}

	if fromUnitID == toUnitID {
		return []unit.Unit{fromUnit}, nil
	}

	fromAncestors, err := s.ancestry.GetAncestors(ctx, fromUnitID)
	if err != nil {
		return nil, err
	}

	// to is an ancestor of from: walk straight up.
	for _, entry := range fromAncestors {
		if entry.Unit.UnitID() == toUnitID {
			path := []unit.Unit{fromUnit}
			for _, e := range fromAncestors {
				if e.Distance <= entry.Distance {
					path = append(path, e.Unit)
				}
			}
			return path, nil
		}
	}

	toAncestors, err := s.ancestry.GetAncestors(ctx, toUnitID)
	if err != nil {
		return nil, err
	}

	// from is an ancestor of to: build the upward path and reverse it.
	for _, entry := range toAncestors {
		if entry.Unit.UnitID() == fromUnitID {
			segment := []unit.Unit{toUnit}
			for _, e := range toAncestors {
				if e.Distance < entry.Distance {
					segment = append(segment, e.Unit)
				}
			}
			segment = append(segment, fromUnit)
			reverseUnits(segment)
			return segment, nil
		}
	}

	// Different branches: pick the common ancestor minimizing the summed
	// distance. In a true tree the minimum is unique.
	var lca unit.Unit
	lcaFromDist, lcaToDist := 0, 0
	best := math.MaxInt
	for _, fe := range fromAncestors {
		for _, te := range toAncestors {
			if fe.Unit.UnitID() == te.Unit.UnitID() && fe.Distance+te.Distance < best {
				best = fe.Distance + te.Distance
				lca = fe.Unit
				lcaFromDist = fe.Distance
				lcaToDist = te.Distance
			}
		}
	}

	if lca.IsZero() {
		return nil, nil
	}

	path := []unit.Unit{fromUnit}
	for _, e := range fromAncestors {
		if e.Distance < lcaFromDist {
			path = append(path, e.Unit)
		}
	}
	path = append(path, lca)

	var descent []unit.Unit
	for _, e := range toAncestors {
		if e.Distance < lcaToDist {
			descent = append(descent, e.Unit)
		}
	}
	for i := len(descent) - 1; i >= 0; i-- {
		path = append(path, descent[i])
	}
	return append(path, toUnit), nil
}

func reverseUnits(units []unit.Unit) {
	for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
		units[i], units[j] = units[j], units[i]
	}
}

func fetchUnit(ctx context.Context, units unit.Repository, unitID uuid.UUID) (unit.Unit, error) {
	u, err := units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, unit.ErrUnitNotFound) {
			return unit.Unit{}, notFoundError("UNIT_NOT_FOUND", fmt.Sprintf("unit not found: %s", unitID), err)
		}
		return unit.Unit{}, err
	}
	return u, nil
}

func publishAll(publisher eventbus.EventBus, events []any) {
	for _, evt := range events {
		publisher.Publish(evt)
	}
}
