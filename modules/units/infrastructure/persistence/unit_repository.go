package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/pkg/composables"
)

type UnitRepository struct{}

func NewUnitRepository() unit.Repository {
	return &UnitRepository{}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func asUUIDPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func asTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func asTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

const unitColumns = `
	tenant_id,
	unit_id,
	name,
	type,
	parent_unit_id,
	description,
	extra_attributes,
	created_at,
	updated_at`

func scanUnit(row pgx.Row) (unit.Unit, error) {
	var (
		tenantID  pgtype.UUID
		unitID    pgtype.UUID
		name      string
		unitType  string
		parentID  pgtype.UUID
		desc      string
		extraRaw  []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&tenantID, &unitID, &name, &unitType, &parentID, &desc, &extraRaw, &createdAt, &updatedAt); err != nil {
		return unit.Unit{}, err
	}

	var extra map[string]any
	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &extra); err != nil {
			return unit.Unit{}, gerrors.Wrap(err, "decode unit extra_attributes")
		}
	}

	return unit.Hydrate(
		asUUID(tenantID),
		asUUID(unitID),
		name,
		unit.Type(unitType),
		asUUIDPtr(parentID),
		desc,
		extra,
		asTime(createdAt),
		asTime(updatedAt),
	), nil
}

func (r *UnitRepository) GetByID(ctx context.Context, unitID uuid.UUID) (unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return unit.Unit{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return unit.Unit{}, err
	}

	u, err := scanUnit(tx.QueryRow(ctx, `
SELECT`+unitColumns+`
FROM units
WHERE tenant_id = $1 AND unit_id = $2
`, pgUUID(tenantID), pgUUID(unitID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unit.Unit{}, unit.ErrUnitNotFound
		}
		return unit.Unit{}, err
	}
	return u, nil
}

func (r *UnitRepository) GetAllForTenant(ctx context.Context) ([]unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+unitColumns+`
FROM units
WHERE tenant_id = $1
ORDER BY name ASC, unit_id ASC
`, pgUUID(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]unit.Unit, 0, 64)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UnitRepository) GetChildren(ctx context.Context, parentUnitID uuid.UUID) ([]unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+unitColumns+`
FROM units
WHERE tenant_id = $1 AND parent_unit_id = $2
ORDER BY name ASC, unit_id ASC
`, pgUUID(tenantID), pgUUID(parentUnitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]unit.Unit, 0, 8)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UnitRepository) Create(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return unit.Unit{}, err
	}

	extraRaw, err := json.Marshal(u.ExtraAttributes())
	if err != nil {
		return unit.Unit{}, gerrors.Wrap(err, "encode unit extra_attributes")
	}

	created, err := scanUnit(tx.QueryRow(ctx, `
INSERT INTO units (
	tenant_id,
	unit_id,
	name,
	type,
	parent_unit_id,
	description,
	extra_attributes
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING`+unitColumns+`
`,
		pgUUID(u.TenantID()),
		pgUUID(u.UnitID()),
		u.Name(),
		string(u.Type()),
		pgUUIDPtr(u.ParentUnitID()),
		u.Description(),
		extraRaw,
	))
	if err != nil {
		return unit.Unit{}, err
	}
	return created, nil
}

func (r *UnitRepository) Update(ctx context.Context, u unit.Unit) (unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return unit.Unit{}, err
	}

	updated, err := scanUnit(tx.QueryRow(ctx, `
UPDATE units
SET name = $3,
	description = $4,
	updated_at = now()
WHERE tenant_id = $1 AND unit_id = $2
RETURNING`+unitColumns+`
`,
		pgUUID(u.TenantID()),
		pgUUID(u.UnitID()),
		u.Name(),
		u.Description(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unit.Unit{}, unit.ErrUnitNotFound
		}
		return unit.Unit{}, err
	}
	return updated, nil
}

func (r *UnitRepository) UpdateParent(ctx context.Context, unitID uuid.UUID, parentUnitID *uuid.UUID) (unit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return unit.Unit{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return unit.Unit{}, err
	}

	updated, err := scanUnit(tx.QueryRow(ctx, `
UPDATE units
SET parent_unit_id = $3,
	updated_at = now()
WHERE tenant_id = $1 AND unit_id = $2
RETURNING`+unitColumns+`
`, pgUUID(tenantID), pgUUID(unitID), pgUUIDPtr(parentUnitID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unit.Unit{}, unit.ErrUnitNotFound
		}
		return unit.Unit{}, err
	}
	return updated, nil
}

func (r *UnitRepository) Delete(ctx context.Context, unitID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM units
WHERE tenant_id = $1 AND unit_id = $2
`, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return unit.ErrUnitNotFound
	}
	return nil
}

func (r *UnitRepository) SetTag(ctx context.Context, unitID uuid.UUID, key, value string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO unit_tags (tenant_id, unit_id, key, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, unit_id, key)
DO UPDATE SET value = excluded.value, updated_at = now()
`, pgUUID(tenantID), pgUUID(unitID), key, value)
	return err
}

func (r *UnitRepository) GetTags(ctx context.Context, unitID uuid.UUID) (map[string]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT key, value
FROM unit_tags
WHERE tenant_id = $1 AND unit_id = $2
`, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		tags[key] = value
	}
	return tags, rows.Err()
}
