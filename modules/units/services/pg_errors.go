package services

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return mapPgErrorToServiceError(err)
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundError("UNIT_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "unit_ancestry_pkey":
			return conflictError("UNIT_ANCESTRY_CONFLICT", "ancestry row already exists", err)
		case "unit_assignments_active_key":
			return conflictError("UNIT_ASSIGNMENT_CONFLICT", "user already has an active assignment in this unit", err)
		case "unit_tags_pkey":
			return conflictError("UNIT_TAG_CONFLICT", "tag already exists", err)
		default:
			return conflictError("UNIT_CONFLICT", "unique constraint violated", err)
		}
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "UNIT_REFERENCE_NOT_FOUND", "referenced row not found", err)
	default:
		return err
	}
}
