package chart

import "errors"

var (
	ErrChartNotFound    = errors.New("chart not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")

	ErrNotSandbox         = errors.New("chart is not a sandbox")
	ErrNotEditable        = errors.New("chart is not editable in its current status")
	ErrInvalidTransition  = errors.New("chart status transition not allowed")
	ErrCloneOfSandbox     = errors.New("a sandbox cannot be cloned")
	ErrActiveChartExists  = errors.New("department already has an active chart")
	ErrMultipleActive     = errors.New("department has more than one active chart")
	ErrInvalidVersion     = errors.New("invalid version label")
	ErrSnapshotChartMatch = errors.New("snapshot belongs to another chart")

	ErrInvalidData         = errors.New("invalid chart data")
	ErrDuplicatePosition   = errors.New("position already in chart")
	ErrPositionNotInChart  = errors.New("position not in chart")
	ErrPositionHasReports  = errors.New("position has reports in chart")
	ErrDanglingConnection  = errors.New("connection references a position not in chart")
	ErrDanglingReportsTo   = errors.New("reports_to references a position not in chart")
	ErrReportingLineCycles = errors.New("reports_to lines form a cycle")
)
