package staffing

import "errors"

var (
	ErrPositionNotFound   = errors.New("position not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	ErrEmployeeAlreadyPlaced   = errors.New("employee already holds an open assignment")
	ErrPositionAlreadyOccupied = errors.New("position already has an open assignment")
	ErrInvalidDateRange        = errors.New("start date must not be after end date")
	ErrDuplicateAssignment     = errors.New("assignment for this position, employee and start date already exists")
	ErrAlreadyEnded            = errors.New("assignment already ended")
	ErrEndBeforeStart          = errors.New("end date is before start date")
	ErrInvalidKind             = errors.New("invalid assignment kind")

	ErrPositionOccupied    = errors.New("position has a current occupant")
	ErrPositionHasChildren = errors.New("position has direct reports")
	ErrPositionHasHistory  = errors.New("position is referenced by assignments")
	ErrEmployeeNumberTaken = errors.New("employee number already exists")
	ErrPositionExists      = errors.New("position id already exists")

	// ErrMultipleOccupants signals that storage holds overlapping assignments
	// for one position. It is never repaired automatically.
	ErrMultipleOccupants = errors.New("more than one assignment covers the date")
)
