package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

// ServiceError is the structured failure every service operation returns.
// Cause keeps the domain sentinel, so errors.Is works through it.
type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// IsIntegrity reports whether the error signals inconsistent stored data.
func (e *ServiceError) IsIntegrity() bool { return e.Code == CodeIntegrity }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

const (
	CodeNotFound            = "ORG_NOT_FOUND"
	CodeInvalidBody         = "ORG_INVALID_BODY"
	CodeInvalidDateRange    = "ORG_INVALID_DATE_RANGE"
	CodeEndBeforeStart      = "ORG_END_BEFORE_START"
	CodeEmployeePlaced      = "ORG_EMPLOYEE_PLACED"
	CodePositionOccupied    = "ORG_POSITION_OCCUPIED"
	CodeDuplicateAssignment = "ORG_DUPLICATE_ASSIGNMENT"
	CodeAssignmentEnded     = "ORG_ASSIGNMENT_ENDED"
	CodeHasChildren         = "ORG_POSITION_HAS_CHILDREN"
	CodeHasHistory          = "ORG_POSITION_HAS_HISTORY"
	CodeEmployeeNumber      = "ORG_EMPLOYEE_NUMBER_CONFLICT"
	CodePositionConflict    = "ORG_POSITION_CONFLICT"
	CodeCycleDetected       = "ORG_CYCLE_DETECTED"
	CodeParentNotFound      = "ORG_PARENT_NOT_FOUND"
	CodeChartNotSandbox     = "ORG_CHART_NOT_SANDBOX"
	CodeChartInvalidState   = "ORG_CHART_INVALID_STATE"
	CodeActiveChartExists   = "ORG_ACTIVE_CHART_EXISTS"
	CodeApprovalPending     = "ORG_APPROVAL_PENDING"
	CodeApprovalNotPending  = "ORG_APPROVAL_NOT_PENDING"
	CodeImportRejected      = "ORG_IMPORT_REJECTED"
	CodeIntegrity           = "ORG_INTEGRITY"
	CodeWriteConflict       = "ORG_WRITE_CONFLICT"
	CodeInternal            = "ORG_INTERNAL"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// order matters only where one error wraps another; none of the sentinels
// below wrap each other
var domainErrors = []errorMapping{
	{staffing.ErrPositionNotFound, http.StatusNotFound, CodeNotFound, "position not found"},
	{staffing.ErrEmployeeNotFound, http.StatusNotFound, CodeNotFound, "employee not found"},
	{staffing.ErrAssignmentNotFound, http.StatusNotFound, CodeNotFound, "assignment not found"},
	{chart.ErrChartNotFound, http.StatusNotFound, CodeNotFound, "chart not found"},
	{chart.ErrSnapshotNotFound, http.StatusNotFound, CodeNotFound, "snapshot not found"},
	{changerequest.ErrNotFound, http.StatusNotFound, CodeNotFound, "approval request not found"},
	{interchange.ErrImportLogNotFound, http.StatusNotFound, CodeNotFound, "import log not found"},
	{hierarchy.ErrNodeNotFound, http.StatusNotFound, CodeNotFound, "position not found"},

	{staffing.ErrEmployeeAlreadyPlaced, http.StatusConflict, CodeEmployeePlaced, "employee already placed"},
	{staffing.ErrPositionAlreadyOccupied, http.StatusConflict, CodePositionOccupied, "position already occupied"},
	{staffing.ErrPositionOccupied, http.StatusConflict, CodePositionOccupied, "position is occupied"},
	{staffing.ErrDuplicateAssignment, http.StatusConflict, CodeDuplicateAssignment, "duplicate assignment"},
	{staffing.ErrAlreadyEnded, http.StatusConflict, CodeAssignmentEnded, "assignment already ended"},
	{staffing.ErrPositionHasChildren, http.StatusConflict, CodeHasChildren, "position has direct reports"},
	{staffing.ErrPositionHasHistory, http.StatusConflict, CodeHasHistory, "position has assignment history"},
	{staffing.ErrEmployeeNumberTaken, http.StatusConflict, CodeEmployeeNumber, "employee number already exists"},
	{staffing.ErrPositionExists, http.StatusConflict, CodePositionConflict, "position id already exists"},
	{staffing.ErrInvalidDateRange, http.StatusUnprocessableEntity, CodeInvalidDateRange, "invalid date range"},
	{staffing.ErrEndBeforeStart, http.StatusUnprocessableEntity, CodeEndBeforeStart, "end date before start date"},
	{staffing.ErrInvalidKind, http.StatusUnprocessableEntity, CodeInvalidBody, "invalid assignment kind"},

	{hierarchy.ErrCycleDetected, http.StatusConflict, CodeCycleDetected, "cycle detected"},
	{hierarchy.ErrParentNotFound, http.StatusUnprocessableEntity, CodeParentNotFound, "parent position not found"},
	{hierarchy.ErrDuplicateNode, http.StatusUnprocessableEntity, CodeInvalidBody, "duplicate position id"},

	{chart.ErrNotSandbox, http.StatusConflict, CodeChartNotSandbox, "chart is not a sandbox"},
	{chart.ErrNotEditable, http.StatusConflict, CodeChartInvalidState, "chart is not editable"},
	{chart.ErrInvalidTransition, http.StatusConflict, CodeChartInvalidState, "chart status transition not allowed"},
	{chart.ErrCloneOfSandbox, http.StatusConflict, CodeChartInvalidState, "a sandbox cannot be cloned"},
	{chart.ErrActiveChartExists, http.StatusConflict, CodeActiveChartExists, "department already has an active chart"},
	{chart.ErrReportingLineCycles, http.StatusUnprocessableEntity, CodeCycleDetected, "reporting lines form a cycle"},
	{chart.ErrInvalidVersion, http.StatusUnprocessableEntity, CodeInvalidBody, "invalid version label"},
	{chart.ErrInvalidData, http.StatusUnprocessableEntity, CodeInvalidBody, "invalid chart data"},
	{chart.ErrDuplicatePosition, http.StatusConflict, CodePositionConflict, "position already in chart"},
	{chart.ErrPositionNotInChart, http.StatusUnprocessableEntity, CodeInvalidBody, "position not in chart"},
	{chart.ErrPositionHasReports, http.StatusConflict, CodeHasChildren, "position has reports in chart"},
	{chart.ErrDanglingConnection, http.StatusUnprocessableEntity, CodeInvalidBody, "connection references unknown position"},
	{chart.ErrDanglingReportsTo, http.StatusUnprocessableEntity, CodeInvalidBody, "reports_to references unknown position"},
	{chart.ErrSnapshotChartMatch, http.StatusUnprocessableEntity, CodeInvalidBody, "snapshot belongs to another chart"},

	{changerequest.ErrAlreadyPending, http.StatusConflict, CodeApprovalPending, "approval already pending"},
	{changerequest.ErrNotPending, http.StatusConflict, CodeApprovalNotPending, "approval request is not pending"},
	{changerequest.ErrInvalidDecision, http.StatusUnprocessableEntity, CodeInvalidBody, "invalid decision"},

	{staffing.ErrMultipleOccupants, http.StatusInternalServerError, CodeIntegrity, "internal inconsistency"},
	{chart.ErrMultipleActive, http.StatusInternalServerError, CodeIntegrity, "internal inconsistency"},
	{hierarchy.ErrOrphan, http.StatusInternalServerError, CodeIntegrity, "internal inconsistency"},
}

// mapServiceError converts domain sentinels and storage failures into a
// ServiceError and logs it at a level matching its class.
func mapServiceError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		se = classify(err)
	}
	fields := logrus.Fields{"op": op, "code": se.Code, "error": err.Error()}
	switch {
	case se.IsIntegrity():
		logWithFields(ctx, logrus.ErrorLevel, "org integrity violation", fields)
	case se.Status >= http.StatusInternalServerError:
		logWithFields(ctx, logrus.ErrorLevel, "org operation failed", fields)
	default:
		logWithFields(ctx, logrus.WarnLevel, "org operation rejected", fields)
	}
	return se
}

func classify(err error) *ServiceError {
	if mapped := mapPgErrorToServiceError(err); mapped != nil {
		return mapped
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return newServiceError(m.status, m.code, m.message, err)
		}
	}
	var verr *inputError
	if errors.As(err, &verr) {
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidBody, verr.msg, err)
	}
	return newServiceError(http.StatusInternalServerError, CodeInternal, "internal error", err)
}

func isNotFound(err, target error) bool {
	return errors.Is(err, target)
}
