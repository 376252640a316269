package services_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/modules/units/services"
	"github.com/helmsman-hq/helmsman/pkg/composables"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

// stubTx satisfies pgx.Tx so tenant transaction helpers reuse it instead
// of opening a real connection. The repositories under test are in-memory
// and never touch it.
type stubTx struct{}

func (stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return stubTx{}, nil }
func (stubTx) Commit(ctx context.Context) error          { return nil }
func (stubTx) Rollback(ctx context.Context) error        { return nil }
func (stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (stubTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (stubTx) Conn() *pgx.Conn                                               { return nil }

// memUnitStore backs the unit and ancestry repositories of one test.
type memUnitStore struct {
	mu          sync.Mutex
	units       map[uuid.UUID]unit.Unit
	ancestry    []unit.AncestryRow
	assignments map[uuid.UUID]assignment.Assignment
	users       map[uuid.UUID]services.UserRecord
}

func newMemUnitStore() *memUnitStore {
	return &memUnitStore{
		units:       make(map[uuid.UUID]unit.Unit),
		assignments: make(map[uuid.UUID]assignment.Assignment),
		users:       make(map[uuid.UUID]services.UserRecord),
	}
}

type memUnitRepository struct{ store *memUnitStore }

func (r *memUnitRepository) GetByID(ctx context.Context, unitID uuid.UUID) (unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.units[unitID]
	if !ok {
		return unit.Unit{}, unit.ErrUnitNotFound
	}
	return u, nil
}

func (r *memUnitRepository) GetAllForTenant(ctx context.Context) ([]unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]unit.Unit, 0, len(r.store.units))
	for _, u := range r.store.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID().String() < out[j].UnitID().String() })
	return out, nil
}

func (r *memUnitRepository) GetChildren(ctx context.Context, parentUnitID uuid.UUID) ([]unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []unit.Unit
	for _, u := range r.store.units {
		if p := u.ParentUnitID(); p != nil && *p == parentUnitID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *memUnitRepository) Create(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.units[u.UnitID()] = u
	return u, nil
}

func (r *memUnitRepository) Update(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.units[u.UnitID()]; !ok {
		return unit.Unit{}, unit.ErrUnitNotFound
	}
	r.store.units[u.UnitID()] = u
	return u, nil
}

func (r *memUnitRepository) UpdateParent(ctx context.Context, unitID uuid.UUID, parentUnitID *uuid.UUID) (unit.Unit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.units[unitID]
	if !ok {
		return unit.Unit{}, unit.ErrUnitNotFound
	}
	updated := u.WithParentUnitID(parentUnitID)
	r.store.units[unitID] = updated
	return updated, nil
}

func (r *memUnitRepository) Delete(ctx context.Context, unitID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.units[unitID]; !ok {
		return unit.ErrUnitNotFound
	}
	delete(r.store.units, unitID)
	return nil
}

func (r *memUnitRepository) SetTag(ctx context.Context, unitID uuid.UUID, key, value string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.units[unitID]
	if !ok {
		return unit.ErrUnitNotFound
	}
	tags, _ := u.ExtraAttributes()["__tags"].(map[string]string)
	if tags == nil {
		tags = make(map[string]string)
	}
	tags[key] = value
	extra := u.ExtraAttributes()
	if extra == nil {
		extra = make(map[string]any)
	}
	extra["__tags"] = tags
	r.store.units[unitID] = u.WithExtraAttributes(extra)
	return nil
}

func (r *memUnitRepository) GetTags(ctx context.Context, unitID uuid.UUID) (map[string]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.units[unitID]
	if !ok {
		return nil, unit.ErrUnitNotFound
	}
	tags, _ := u.ExtraAttributes()["__tags"].(map[string]string)
	if tags == nil {
		tags = make(map[string]string)
	}
	return tags, nil
}

type memAncestryRepository struct{ store *memUnitStore }

func (r *memAncestryRepository) LockTenantTree(ctx context.Context) error { return nil }

func (r *memAncestryRepository) GetAncestors(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []unit.AncestryEntry
	for _, row := range r.store.ancestry {
		if row.UnitID == unitID {
			out = append(out, unit.AncestryEntry{Unit: r.store.units[row.AncestorUnitID], Distance: row.Distance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

func (r *memAncestryRepository) GetDescendants(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []unit.AncestryEntry
	for _, row := range r.store.ancestry {
		if row.AncestorUnitID == unitID {
			out = append(out, unit.AncestryEntry{Unit: r.store.units[row.UnitID], Distance: row.Distance})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Unit.Name() < out[j].Unit.Name()
	})
	return out, nil
}

func (r *memAncestryRepository) GetRows(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryRow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []unit.AncestryRow
	for _, row := range r.store.ancestry {
		if row.UnitID == unitID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

func (r *memAncestryRepository) GetDescendantRows(ctx context.Context, ancestorUnitID uuid.UUID) ([]unit.AncestryRow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []unit.AncestryRow
	for _, row := range r.store.ancestry {
		if row.AncestorUnitID == ancestorUnitID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].UnitID.String() < out[j].UnitID.String()
	})
	return out, nil
}

func (r *memAncestryRepository) Exists(ctx context.Context, unitID, ancestorUnitID uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, row := range r.store.ancestry {
		if row.UnitID == unitID && row.AncestorUnitID == ancestorUnitID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAncestryRepository) DeleteForUnit(ctx context.Context, unitID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.ancestry[:0]
	for _, row := range r.store.ancestry {
		if row.UnitID != unitID {
			kept = append(kept, row)
		}
	}
	r.store.ancestry = kept
	return nil
}

func (r *memAncestryRepository) InsertRows(ctx context.Context, entries []unit.AncestryRow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.ancestry = append(r.store.ancestry, entries...)
	return nil
}

type memAssignmentRepository struct{ store *memUnitStore }

func (r *memAssignmentRepository) GetForUnit(ctx context.Context, unitID uuid.UUID, includeInactive bool) ([]assignment.Assignment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []assignment.Assignment
	for _, a := range r.store.assignments {
		if a.UnitID() != unitID {
			continue
		}
		if !includeInactive && !a.IsActive() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate().Before(out[j].StartDate()) })
	return out, nil
}

func (r *memAssignmentRepository) GetActive(ctx context.Context, unitID, userID uuid.UUID) (assignment.Assignment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, a := range r.store.assignments {
		if a.UnitID() == unitID && a.UserID() == userID && a.IsActive() {
			return a, nil
		}
	}
	return assignment.Assignment{}, assignment.ErrNoActiveAssignment
}

func (r *memAssignmentRepository) Create(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.assignments[a.AssignmentID()] = a
	return a, nil
}

func (r *memAssignmentRepository) End(ctx context.Context, assignmentID uuid.UUID, endDate time.Time) (assignment.Assignment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.assignments[assignmentID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNoActiveAssignment
	}
	ended := a.Ended(endDate)
	r.store.assignments[assignmentID] = ended
	return ended, nil
}

type memUserLookup struct{ store *memUnitStore }

func (r *memUserLookup) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, ok := r.store.users[userID]
	return ok, nil
}

func (r *memUserLookup) GetByID(ctx context.Context, userID uuid.UUID) (services.UserRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.users[userID], nil
}

// fixture wires the three services over one in-memory store.
type fixture struct {
	ctx         context.Context
	tenantID    uuid.UUID
	store       *memUnitStore
	bus         eventbus.EventBus
	events      *eventRecorder
	units       *services.UnitService
	hierarchy   *services.HierarchyService
	assignments *services.AssignmentService
}

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func (r *eventRecorder) ofType(match func(any) bool) []any {
	var out []any
	for _, evt := range r.all() {
		if match(evt) {
			out = append(out, evt)
		}
	}
	return out
}

func setupTest(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := newMemUnitStore()
	bus := eventbus.NewEventPublisher(log)

	recorder := &eventRecorder{}
	bus.Subscribe(func(evt *unit.CreatedEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *unit.UpdatedEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *unit.DeletedEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *unit.AttachedToParentEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *unit.DetachedFromParentEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *assignment.UserAssignedEvent) { recorder.record(evt) })
	bus.Subscribe(func(evt *assignment.UserUnassignedEvent) { recorder.record(evt) })

	unitRepo := &memUnitRepository{store: store}
	ancestryRepo := &memAncestryRepository{store: store}
	assignmentRepo := &memAssignmentRepository{store: store}
	userLookup := &memUserLookup{store: store}

	hierarchy := services.NewHierarchyService(unitRepo, ancestryRepo, bus)
	unitService := services.NewUnitService(unitRepo, ancestryRepo, assignmentRepo, hierarchy, bus)
	assignmentService := services.NewAssignmentService(unitRepo, assignmentRepo, userLookup, bus)

	tenantID := uuid.New()
	ctx := composables.WithTx(context.Background(), stubTx{})
	ctx = composables.WithTenantID(ctx, tenantID)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(log))

	return &fixture{
		ctx:         ctx,
		tenantID:    tenantID,
		store:       store,
		bus:         bus,
		events:      recorder,
		units:       unitService,
		hierarchy:   hierarchy,
		assignments: assignmentService,
	}
}

func (f *fixture) addUser(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.users[id] = services.UserRecord{UserID: id, DisplayName: "User " + id.String()[:8]}
	return id
}

func (f *fixture) mustCreate(t *testing.T, name string, unitType unit.Type, parentID *uuid.UUID) unit.Unit {
	t.Helper()
	created, err := f.units.Create(f.ctx, unit.CreateDTO{
		Name:         name,
		Type:         unitType,
		ParentUnitID: parentID,
	}, services.Options{})
	if err != nil {
		t.Fatalf("create unit %q: %v", name, err)
	}
	return created
}

func ptr[T any](v T) *T { return &v }
