package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helmsman-hq/helmsman/modules/units/services"
	"github.com/helmsman-hq/helmsman/pkg/composables"
)

// UserResolver implements services.UserLookup against the shared users
// table owned by the identity module.
type UserResolver struct{}

func NewUserResolver() services.UserLookup {
	return &UserResolver{}
}

func (r *UserResolver) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
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
	SELECT 1 FROM users WHERE tenant_id = $1 AND user_id = $2
)
`, pgUUID(tenantID), pgUUID(userID)).Scan(&exists)
	return exists, err
}

func (r *UserResolver) GetByID(ctx context.Context, userID uuid.UUID) (services.UserRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.UserRecord{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return services.UserRecord{}, err
	}

	var record services.UserRecord
	err = tx.QueryRow(ctx, `
SELECT user_id, display_name, email
FROM users
WHERE tenant_id = $1 AND user_id = $2
`, pgUUID(tenantID), pgUUID(userID)).Scan(&record.UserID, &record.DisplayName, &record.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return services.UserRecord{}, fmt.Errorf("user not found: %s", userID)
		}
		return services.UserRecord{}, err
	}
	return record, nil
}
