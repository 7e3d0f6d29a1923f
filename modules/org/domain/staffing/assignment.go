package staffing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AssignmentKind string

const (
	KindPermanent AssignmentKind = "permanent"
	KindTemporary AssignmentKind = "temporary"
	KindInterim   AssignmentKind = "interim"
)

func ParseAssignmentKind(s string) (AssignmentKind, error) {
	switch k := AssignmentKind(s); k {
	case KindPermanent, KindTemporary, KindInterim:
		return k, nil
	case "":
		return KindPermanent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Assignment binds one employee to one position for a closed or open
// interval of calendar days. Both bounds are inclusive.
type Assignment struct {
	ID         uuid.UUID      `json:"id"`
	PositionID string         `json:"position_id"`
	EmployeeID uuid.UUID      `json:"employee_id"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
	Kind       AssignmentKind `json:"kind"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (a *Assignment) IsOpen() bool { return a.EndDate == nil }

// Covers reports whether the assignment is in effect on day.
func (a *Assignment) Covers(day time.Time) bool {
	day = DateOnly(day)
	if day.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || !day.After(*a.EndDate)
}

// Overlaps reports whether a and the interval [start, end] share a day.
// A nil end means open-ended.
func (a *Assignment) Overlaps(start time.Time, end *time.Time) bool {
	if end != nil && end.Before(a.StartDate) {
		return false
	}
	if a.EndDate != nil && a.EndDate.Before(start) {
		return false
	}
	return true
}

// End closes the assignment on endDate.
func (a *Assignment) End(endDate time.Time, notes string) error {
	if a.EndDate != nil {
		return ErrAlreadyEnded
	}
	endDate = DateOnly(endDate)
	if endDate.Before(a.StartDate) {
		return ErrEndBeforeStart
	}
	a.EndDate = &endDate
	if notes != "" {
		if a.Notes != "" {
			a.Notes += "\n"
		}
		a.Notes += notes
	}
	return nil
}

// DaysUntilEnd returns the number of days from asOf to the end date, or nil
// for open assignments. Negative values mean the assignment already ended.
func (a *Assignment) DaysUntilEnd(asOf time.Time) *int {
	if a.EndDate == nil {
		return nil
	}
	days := int(a.EndDate.Sub(DateOnly(asOf)).Hours() / 24)
	return &days
}

// NewAssignment validates the interval and kind and returns an unsaved
// assignment.
func NewAssignment(positionID string, employeeID uuid.UUID, start time.Time, end *time.Time, kind AssignmentKind, notes string) (*Assignment, error) {
	if _, err := ParseAssignmentKind(string(kind)); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = KindPermanent
	}
	start = DateOnly(start)
	var endDay *time.Time
	if end != nil {
		e := DateOnly(*end)
		if e.Before(start) {
			return nil, ErrInvalidDateRange
		}
		endDay = &e
	}
	return &Assignment{
		ID:         uuid.New(),
		PositionID: positionID,
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    endDay,
		Kind:       kind,
		Notes:      notes,
	}, nil
}

// SelectCovering returns the single assignment covering day, nil if none, or
// ErrMultipleOccupants if storage holds more than one.
func SelectCovering(assignments []*Assignment, day time.Time) (*Assignment, error) {
	var found *Assignment
	for _, a := range assignments {
		if !a.Covers(day) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: position %s on %s", ErrMultipleOccupants, a.PositionID, DateOnly(day).Format(time.DateOnly))
		}
		found = a
	}
	return found, nil
}

// DateOnly truncates t to a UTC calendar day.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
