package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/pkg/composables"
)

// AncestryRepository persists the materialized closure table of the unit
// tree: one row per (unit, ancestor) pair carrying the chain distance.
type AncestryRepository struct{}

func NewAncestryRepository() unit.AncestryRepository {
	return &AncestryRepository{}
}

// LockTenantTree serializes hierarchy mutations per tenant with a
// transaction-scoped advisory lock, released automatically at commit or
// rollback.
func (r *AncestryRepository) LockTenantTree(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "unit_tree:"+tenantID.String())
	return err
}

func (r *AncestryRepository) GetAncestors(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT
	u.tenant_id,
	u.unit_id,
	u.name,
	u.type,
	u.parent_unit_id,
	u.description,
	u.extra_attributes,
	u.created_at,
	u.updated_at,
	a.distance
FROM unit_ancestry a
JOIN units u
	ON u.tenant_id = a.tenant_id
	AND u.unit_id = a.ancestor_unit_id
WHERE a.tenant_id = $1 AND a.unit_id = $2
ORDER BY a.distance ASC
`, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAncestryEntries(rows)
}

func (r *AncestryRepository) GetDescendants(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT
	u.tenant_id,
	u.unit_id,
	u.name,
	u.type,
	u.parent_unit_id,
	u.description,
	u.extra_attributes,
	u.created_at,
	u.updated_at,
	a.distance
FROM unit_ancestry a
JOIN units u
	ON u.tenant_id = a.tenant_id
	AND u.unit_id = a.unit_id
WHERE a.tenant_id = $1 AND a.ancestor_unit_id = $2
ORDER BY a.distance ASC, u.name ASC, u.unit_id ASC
`, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAncestryEntries(rows)
}

func (r *AncestryRepository) GetRows(ctx context.Context, unitID uuid.UUID) ([]unit.AncestryRow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT unit_id, ancestor_unit_id, distance
FROM unit_ancestry
WHERE tenant_id = $1 AND unit_id = $2
ORDER BY distance ASC
`, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAncestryRows(rows)
}

func (r *AncestryRepository) GetDescendantRows(ctx context.Context, ancestorUnitID uuid.UUID) ([]unit.AncestryRow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT unit_id, ancestor_unit_id, distance
FROM unit_ancestry
WHERE tenant_id = $1 AND ancestor_unit_id = $2
ORDER BY distance ASC, unit_id ASC
`, pgUUID(tenantID), pgUUID(ancestorUnitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAncestryRows(rows)
}

func (r *AncestryRepository) Exists(ctx context.Context, unitID, ancestorUnitID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = tx.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM unit_ancestry
	WHERE tenant_id = $1 AND unit_id = $2 AND ancestor_unit_id = $3
)
`, pgUUID(tenantID), pgUUID(unitID), pgUUID(ancestorUnitID)).Scan(&exists)
	return exists, err
}

func (r *AncestryRepository) DeleteForUnit(ctx context.Context, unitID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
DELETE FROM unit_ancestry
WHERE tenant_id = $1 AND unit_id = $2
`, pgUUID(tenantID), pgUUID(unitID))
	return err
}

func (r *AncestryRepository) InsertRows(ctx context.Context, entries []unit.AncestryRow) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if _, err := tx.Exec(ctx, `
INSERT INTO unit_ancestry (tenant_id, unit_id, ancestor_unit_id, distance)
VALUES ($1, $2, $3, $4)
`, pgUUID(tenantID), pgUUID(entry.UnitID), pgUUID(entry.AncestorUnitID), entry.Distance); err != nil {
			return err
		}
	}
	return nil
}

func scanAncestryEntries(rows pgx.Rows) ([]unit.AncestryEntry, error) {
	out := make([]unit.AncestryEntry, 0, 8)
	for rows.Next() {
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
			distance  int
		)
		if err := rows.Scan(&tenantID, &unitID, &name, &unitType, &parentID, &desc, &extraRaw, &createdAt, &updatedAt, &distance); err != nil {
			return nil, err
		}

		var extra map[string]any
		if len(extraRaw) > 0 {
			if err := json.Unmarshal(extraRaw, &extra); err != nil {
				return nil, gerrors.Wrap(err, "decode unit extra_attributes")
			}
		}

		out = append(out, unit.AncestryEntry{
			Unit: unit.Hydrate(
				asUUID(tenantID),
				asUUID(unitID),
				name,
				unit.Type(unitType),
				asUUIDPtr(parentID),
				desc,
				extra,
				asTime(createdAt),
				asTime(updatedAt),
			),
			Distance: distance,
		})
	}
	return out, rows.Err()
}

func scanAncestryRows(rows pgx.Rows) ([]unit.AncestryRow, error) {
	out := make([]unit.AncestryRow, 0, 16)
	for rows.Next() {
		var (
			unitID     pgtype.UUID
			ancestorID pgtype.UUID
			row        unit.AncestryRow
		)
		if err := rows.Scan(&unitID, &ancestorID, &row.Distance); err != nil {
			return nil, err
		}
		row.UnitID = asUUID(unitID)
		row.AncestorUnitID = asUUID(ancestorID)
		out = append(out, row)
	}
	return out, rows.Err()
}
