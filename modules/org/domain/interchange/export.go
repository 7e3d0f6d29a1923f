package interchange

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
)

const (
	VacantLabel  = "VACANTE"
	StatusFilled = "Ocupado"
	StatusVacant = "Vacante"
)

// ExportHeaders are the flat export column titles, in order.
var ExportHeaders = []string{
	"ID_Puesto",
	"Nombre_Puesto",
	"Departamento",
	"Nivel",
	"ID_Jefe",
	"Nombre_Jefe",
	"Empleado_Actual",
	"Responsabilidades",
	"Estado",
	"Fecha_Actualizacion",
}

// ExportRow is one position in the flat export. Vacant positions are always
// present with CurrentEmployee set to VacantLabel.
type ExportRow struct {
	ID               string `json:"id_puesto"`
	Title            string `json:"nombre_puesto"`
	Department       string `json:"departamento"`
	Level            int    `json:"nivel"`
	ParentID         string `json:"id_jefe"`
	ParentTitle      string `json:"nombre_jefe"`
	CurrentEmployee  string `json:"empleado_actual"`
	Responsibilities string `json:"responsabilidades"`
	Status           string `json:"estado"`
	UpdatedAt        string `json:"fecha_actualizacion"`
}

func (r ExportRow) Values() []any {
	return []any{
		r.ID,
		r.Title,
		r.Department,
		r.Level,
		r.ParentID,
		r.ParentTitle,
		r.CurrentEmployee,
		r.Responsibilities,
		r.Status,
		r.UpdatedAt,
	}
}

// Document is the payload handed to a document renderer: chart data plus the
// metadata a renderer needs to title and date it.
type Document struct {
	ChartID     uuid.UUID    `json:"chart_id"`
	Name        string       `json:"name"`
	Department  string       `json:"department"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Status      chart.Status `json:"status"`
	ApprovedAt  *time.Time   `json:"approved_at,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Data        chart.Data   `json:"chart_data"`
	Stats       chart.Stats  `json:"stats"`
}

const updatedAtLayout = "2006-01-02 15:04"

// Flatten turns chart data into one export row per position, in chart
// order. Vacant positions are kept.
func Flatten(d chart.Data, updatedAt time.Time) []ExportRow {
	titles := make(map[string]string, len(d.Positions))
	for _, p := range d.Positions {
		titles[p.ID] = p.Title
	}
	stamp := ""
	if !updatedAt.IsZero() {
		stamp = updatedAt.UTC().Format(updatedAtLayout)
	}
	out := make([]ExportRow, 0, len(d.Positions))
	for _, p := range d.Positions {
		row := ExportRow{
			ID:               p.ID,
			Title:            p.Title,
			Department:       p.Department,
			Level:            p.Level,
			ParentID:         p.ParentID(),
			ParentTitle:      titles[p.ParentID()],
			CurrentEmployee:  VacantLabel,
			Responsibilities: p.Responsibilities,
			Status:           StatusVacant,
			UpdatedAt:        stamp,
		}
		if !p.IsVacant() {
			row.CurrentEmployee = *p.CurrentEmployee
			row.Status = StatusFilled
		}
		out = append(out, row)
	}
	return out
}

// IsVacantLabel reports whether an imported employee cell means "nobody".
func IsVacantLabel(s string) bool {
	switch s {
	case "", VacantLabel, "Vacante", "vacante", "-":
		return true
	default:
		return false
	}
}

func NewDocument(c *chart.Chart, now time.Time) Document {
	return Document{
		ChartID:     c.ID,
		Name:        c.Name,
		Department:  c.Department,
		Description: c.Description,
		Version:     c.Version,
		Status:      c.Status,
		ApprovedAt:  c.ApprovedAt,
		GeneratedAt: now,
		Data:        c.Data.Clone(),
		Stats:       chart.ComputeStats(c.Data),
	}
}
