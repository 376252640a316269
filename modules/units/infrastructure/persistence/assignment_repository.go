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

	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/pkg/composables"
)

type AssignmentRepository struct{}

func NewAssignmentRepository() assignment.Repository {
	return &AssignmentRepository{}
}

const assignmentColumns = `
	tenant_id,
	assignment_id,
	unit_id,
	user_id,
	start_date,
	end_date,
	extra_attributes,
	created_at,
	updated_at`

func scanAssignment(row pgx.Row) (assignment.Assignment, error) {
	var (
		tenantID     pgtype.UUID
		assignmentID pgtype.UUID
		unitID       pgtype.UUID
		userID       pgtype.UUID
		startDate    pgtype.Timestamptz
		endDate      pgtype.Timestamptz
		extraRaw     []byte
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)
	if err := row.Scan(&tenantID, &assignmentID, &unitID, &userID, &startDate, &endDate, &extraRaw, &createdAt, &updatedAt); err != nil {
		return assignment.Assignment{}, err
	}

	var extra map[string]any
	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &extra); err != nil {
			return assignment.Assignment{}, gerrors.Wrap(err, "decode assignment extra_attributes")
		}
	}

	return assignment.Hydrate(
		asUUID(tenantID),
		asUUID(assignmentID),
		asUUID(unitID),
		asUUID(userID),
		asTime(startDate),
		asTimePtr(endDate),
		extra,
		asTime(createdAt),
		asTime(updatedAt),
	), nil
}

func (r *AssignmentRepository) GetForUnit(ctx context.Context, unitID uuid.UUID, includeInactive bool) ([]assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
SELECT` + assignmentColumns + `
FROM unit_assignments
WHERE tenant_id = $1 AND unit_id = $2
`
	if !includeInactive {
		query += `	AND end_date IS NULL
`
	}
	query += `ORDER BY start_date ASC, assignment_id ASC`

	rows, err := tx.Query(ctx, query, pgUUID(tenantID), pgUUID(unitID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]assignment.Assignment, 0, 8)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) GetActive(ctx context.Context, unitID, userID uuid.UUID) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	a, err := scanAssignment(tx.QueryRow(ctx, `
SELECT`+assignmentColumns+`
FROM unit_assignments
WHERE tenant_id = $1
	AND unit_id = $2
	AND user_id = $3
	AND end_date IS NULL
ORDER BY start_date DESC
LIMIT 1
`, pgUUID(tenantID), pgUUID(unitID), pgUUID(userID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assignment.Assignment{}, assignment.ErrNoActiveAssignment
		}
		return assignment.Assignment{}, err
	}
	return a, nil
}

func (r *AssignmentRepository) Create(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	extraRaw, err := json.Marshal(a.ExtraAttributes())
	if err != nil {
		return assignment.Assignment{}, gerrors.Wrap(err, "encode assignment extra_attributes")
	}

	var endDate pgtype.Timestamptz
	if a.EndDate() != nil {
		endDate = pgtype.Timestamptz{Time: *a.EndDate(), Valid: true}
	}

	created, err := scanAssignment(tx.QueryRow(ctx, `
INSERT INTO unit_assignments (
	tenant_id,
	assignment_id,
	unit_id,
	user_id,
	start_date,
	end_date,
	extra_attributes
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING`+assignmentColumns+`
`,
		pgUUID(a.TenantID()),
		pgUUID(a.AssignmentID()),
		pgUUID(a.UnitID()),
		pgUUID(a.UserID()),
		a.StartDate(),
		endDate,
		extraRaw,
	))
	if err != nil {
		return assignment.Assignment{}, err
	}
	return created, nil
}

func (r *AssignmentRepository) End(ctx context.Context, assignmentID uuid.UUID, endDate time.Time) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	ended, err := scanAssignment(tx.QueryRow(ctx, `
UPDATE unit_assignments
SET end_date = $3,
	updated_at = now()
WHERE tenant_id = $1 AND assignment_id = $2
RETURNING`+assignmentColumns+`
`, pgUUID(tenantID), pgUUID(assignmentID), endDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assignment.Assignment{}, assignment.ErrNoActiveAssignment
		}
		return assignment.Assignment{}, err
	}
	return ended, nil
}
