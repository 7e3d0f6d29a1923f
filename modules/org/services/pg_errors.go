package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

// violated wraps both the domain sentinel and the driver error so callers
// can match either.
func violated(sentinel, err error) error {
	return fmt.Errorf("%w (%w)", sentinel, err)
}

// mapPgErrorToServiceError returns nil for errors that did not come from
// Postgres.
func mapPgErrorToServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, CodeNotFound, "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "org_positions_pkey":
			return newServiceError(http.StatusConflict, CodePositionConflict, "position id already exists", violated(staffing.ErrPositionExists, err))
		case "org_employees_employee_number_key":
			return newServiceError(http.StatusConflict, CodeEmployeeNumber, "employee number already exists", violated(staffing.ErrEmployeeNumberTaken, err))
		case "org_assignments_position_open_unique":
			return newServiceError(http.StatusConflict, CodePositionOccupied, "position already occupied", violated(staffing.ErrPositionAlreadyOccupied, err))
		case "org_assignments_employee_open_unique":
			return newServiceError(http.StatusConflict, CodeEmployeePlaced, "employee already placed", violated(staffing.ErrEmployeeAlreadyPlaced, err))
		case "org_assignments_position_employee_start_key":
			return newServiceError(http.StatusConflict, CodeDuplicateAssignment, "duplicate assignment", violated(staffing.ErrDuplicateAssignment, err))
		case "org_charts_department_active_unique":
			return newServiceError(http.StatusConflict, CodeActiveChartExists, "department already has an active chart", violated(chart.ErrActiveChartExists, err))
		case "org_change_requests_chart_pending_unique":
			return newServiceError(http.StatusConflict, CodeApprovalPending, "approval already pending", violated(changerequest.ErrAlreadyPending, err))
		default:
			return newServiceError(http.StatusConflict, CodeWriteConflict, "unique constraint violated", err)
		}
	case "23P01": // exclusion_violation
		recordWriteConflict("overlap")
		switch pgErr.ConstraintName {
		case "org_assignments_position_no_overlap":
			return newServiceError(http.StatusConflict, CodePositionOccupied, "position already occupied", violated(staffing.ErrPositionAlreadyOccupied, err))
		case "org_assignments_employee_no_overlap":
			return newServiceError(http.StatusConflict, CodeEmployeePlaced, "employee already placed", violated(staffing.ErrEmployeeAlreadyPlaced, err))
		default:
			return newServiceError(http.StatusConflict, CodeWriteConflict, "time window overlap", err)
		}
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		if isStillReferenced(pgErr) {
			switch pgErr.ConstraintName {
			case "org_assignments_position_id_fkey":
				return newServiceError(http.StatusConflict, CodeHasHistory, "position has assignment history", violated(staffing.ErrPositionHasHistory, err))
			case "org_positions_reports_to_fkey":
				return newServiceError(http.StatusConflict, CodeHasChildren, "position has direct reports", violated(staffing.ErrPositionHasChildren, err))
			default:
				return newServiceError(http.StatusConflict, CodeWriteConflict, "row is still referenced", err)
			}
		}
		switch pgErr.ConstraintName {
		case "org_positions_reports_to_fkey":
			return newServiceError(http.StatusUnprocessableEntity, CodeParentNotFound, "parent position not found", err)
		case "org_assignments_position_id_fkey":
			return newServiceError(http.StatusNotFound, CodeNotFound, "position not found", violated(staffing.ErrPositionNotFound, err))
		case "org_assignments_employee_id_fkey":
			return newServiceError(http.StatusNotFound, CodeNotFound, "employee not found", violated(staffing.ErrEmployeeNotFound, err))
		default:
			return newServiceError(http.StatusUnprocessableEntity, CodeNotFound, "foreign key violation", err)
		}
	case "23514": // check_violation
		if pgErr.ConstraintName == "org_assignments_date_range_check" {
			return newServiceError(http.StatusUnprocessableEntity, CodeInvalidDateRange, "invalid date range", violated(staffing.ErrInvalidDateRange, err))
		}
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidBody, "check constraint violated", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(http.StatusConflict, CodeWriteConflict, "concurrent write conflict, retry the request", err)
	default:
		return newServiceError(http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

// isStillReferenced tells a DELETE blocked by a referencing row apart from an
// INSERT or UPDATE pointing at a missing row; both raise 23503.
func isStillReferenced(pgErr *pgconn.PgError) bool {
	return strings.HasPrefix(pgErr.Message, "update or delete on table") ||
		strings.Contains(pgErr.Detail, "is still referenced")
}
