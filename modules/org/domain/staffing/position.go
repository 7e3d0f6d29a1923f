package staffing

import (
	"strings"
	"time"
)

// Coordinates is a manual canvas placement.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Position struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Department        string       `json:"department"`
	Level             int          `json:"level"`
	ReportsTo         *string      `json:"reports_to,omitempty"`
	Responsibilities  string       `json:"responsibilities,omitempty"`
	KPIs              []string     `json:"kpis"`
	RequiredProcesses []string     `json:"required_processes"`
	Canvas            *Coordinates `json:"canvas,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (p *Position) ParentID() string {
	if p == nil || p.ReportsTo == nil {
		return ""
	}
	return *p.ReportsTo
}

// Normalize trims identifiers and replaces nil lists so the JSON columns
// never hold null.
func (p *Position) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Title = strings.TrimSpace(p.Title)
	p.Department = strings.TrimSpace(p.Department)
	if p.ReportsTo != nil {
		parent := strings.TrimSpace(*p.ReportsTo)
		if parent == "" {
			p.ReportsTo = nil
		} else {
			p.ReportsTo = &parent
		}
	}
	p.KPIs = compact(p.KPIs)
	p.RequiredProcesses = compact(p.RequiredProcesses)
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
