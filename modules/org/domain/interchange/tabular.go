// Package interchange holds the shapes the org chart exchanges with
// spreadsheets, JSON payloads and downstream renderers.
package interchange

import (
	"fmt"
	"sort"
	"strings"
)

// Import column names.
const (
	ColID               = "id_puesto"
	ColTitle            = "nombre_puesto"
	ColDepartment       = "departamento"
	ColParentID         = "id_jefe"
	ColLevel            = "nivel"
	ColResponsibilities = "responsabilidades"
	ColCurrentEmployee  = "empleado_actual"
)

var (
	RequiredColumns = []string{ColID, ColTitle, ColDepartment}
	OptionalColumns = []string{ColParentID, ColLevel, ColResponsibilities, ColCurrentEmployee}
)

func AllColumns() []string {
	return append(append([]string{}, RequiredColumns...), OptionalColumns...)
}

// TabularRow is one data row of an import sheet. Row is 1-based over data
// rows; Line is the sheet line, header included.
type TabularRow struct {
	Row              int    `json:"row"`
	Line             int    `json:"line"`
	ID               string `json:"id_puesto" col:"id_puesto" validate:"required,max=64"`
	Title            string `json:"nombre_puesto" col:"nombre_puesto" validate:"required,max=255"`
	Department       string `json:"departamento" col:"departamento" validate:"required,max=255"`
	ParentID         string `json:"id_jefe,omitempty" col:"id_jefe" validate:"omitempty,max=64"`
	Level            *int   `json:"nivel,omitempty" col:"nivel" validate:"omitempty,gte=1"`
	Responsibilities string `json:"responsabilidades,omitempty" col:"responsabilidades"`
	CurrentEmployee  string `json:"empleado_actual,omitempty" col:"empleado_actual"`

	// RawLevel keeps a nivel cell that is not a whole number.
	RawLevel string `json:"-"`
}

// Trim strips surrounding whitespace from every text cell.
func (r *TabularRow) Trim() {
	r.ID = strings.TrimSpace(r.ID)
	r.Title = strings.TrimSpace(r.Title)
	r.Department = strings.TrimSpace(r.Department)
	r.ParentID = strings.TrimSpace(r.ParentID)
	r.Responsibilities = strings.TrimSpace(r.Responsibilities)
	r.CurrentEmployee = strings.TrimSpace(r.CurrentEmployee)
}

// RowError is one rejected input row.
type RowError struct {
	Row     int    `json:"row"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Row == 0 {
		return e.Message
	}
	if e.Line > 0 {
		return fmt.Sprintf("row %d (line %d): %s", e.Row, e.Line, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

type ImportReport struct {
	Processed int        `json:"records_processed"`
	Succeeded int        `json:"records_success"`
	Failed    int        `json:"records_errors"`
	Errors    []RowError `json:"errors"`
}

func (r *ImportReport) Fail(e RowError) {
	r.Errors = append(r.Errors, e)
	r.Failed++
}

// Note records dropped or ignored input that did not cost the row.
func (r *ImportReport) Note(e RowError) {
	r.Errors = append(r.Errors, e)
}

// Sort orders entries by row; entries without a row go last.
func (r *ImportReport) Sort() {
	sort.SliceStable(r.Errors, func(i, j int) bool {
		a, b := r.Errors[i].Row, r.Errors[j].Row
		if (a == 0) != (b == 0) {
			return b == 0
		}
		return a < b
	})
}

// HasErrors reports whether any row was rejected. Notes alone do not count.
func (r ImportReport) HasErrors() bool { return r.Failed > 0 }
