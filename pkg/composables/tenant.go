package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/helmsman-hq/helmsman/pkg/constants"
)

var ErrNoTenantID = errors.New("no tenant id found in context")

// WithTenantID returns a new context carrying the tenant the caller acts
// within. Every store query is scoped by this value; cross-tenant access
// requires deliberately building a different context.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, ErrNoTenantID
	}
	return tenantID, nil
}
