package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
)

// PositionNode is one box on a chart. It is the interchange shape shared by
// renderers, importers and exporters.
type PositionNode struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Department       string  `json:"department"`
	Level            int     `json:"level"`
	ReportsTo        *string `json:"reports_to"`
	Responsibilities string  `json:"responsibilities"`
	CurrentEmployee  *string `json:"current_employee"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
}

func (n PositionNode) ParentID() string {
	if n.ReportsTo == nil {
		return ""
	}
	return *n.ReportsTo
}

func (n PositionNode) IsVacant() bool {
	return n.CurrentEmployee == nil || strings.TrimSpace(*n.CurrentEmployee) == ""
}

type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Data struct {
	Positions   []PositionNode `json:"positions"`
	Connections []Connection   `json:"connections"`
}

// ParseData decodes and validates a chart payload. Unknown fields are
// rejected so that typos do not silently drop data.
func ParseData(raw []byte) (Data, error) {
	var d Data
	if len(bytes.TrimSpace(raw)) == 0 {
		return Data{Positions: []PositionNode{}, Connections: []Connection{}}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	d.normalize()
	if err := d.Validate(); err != nil {
		return Data{}, err
	}
	return d, nil
}

func (d *Data) normalize() {
	if d.Positions == nil {
		d.Positions = []PositionNode{}
	}
	if d.Connections == nil {
		d.Connections = []Connection{}
	}
}

// Validate enforces the structural rules of a chart: unique non-empty ids,
// connections and reports_to pointing inside the chart, and no cycles.
func (d Data) Validate() error {
	nodes := make([]hierarchy.Node, 0, len(d.Positions))
	for i, p := range d.Positions {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: position %d has no id", ErrInvalidData, i+1)
		}
		if p.Level < 0 {
			return fmt.Errorf("%w: position %s has negative level", ErrInvalidData, p.ID)
		}
		nodes = append(nodes, hierarchy.Node{ID: p.ID, ParentID: p.ParentID()})
	}
	idx, err := hierarchy.NewIndex(nodes)
	if err != nil {
		if errors.Is(err, hierarchy.ErrDuplicateNode) {
			return fmt.Errorf("%w: %v", ErrDuplicatePosition, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	for _, p := range d.Positions {
		if parent := p.ParentID(); parent != "" && !idx.Has(parent) {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingReportsTo, p.ID, parent)
		}
	}
	levels := idx.ComputeLevels(nil)
	if len(levels.Orphans) > 0 {
		return fmt.Errorf("%w: %s", ErrReportingLineCycles, strings.Join(levels.OrphanIDs(), ", "))
	}

	seen := make(map[Connection]struct{}, len(d.Connections))
	for _, c := range d.Connections {
		if !idx.Has(c.From) || !idx.Has(c.To) {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingConnection, c.From, c.To)
		}
		if c.From == c.To {
			return fmt.Errorf("%w: self connection on %s", ErrInvalidData, c.From)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate connection %s -> %s", ErrInvalidData, c.From, c.To)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy; pointer fields are not shared.
func (d Data) Clone() Data {
	out := Data{
		Positions:   make([]PositionNode, len(d.Positions)),
		Connections: make([]Connection, len(d.Connections)),
	}
	for i, p := range d.Positions {
		if p.ReportsTo != nil {
			v := *p.ReportsTo
			p.ReportsTo = &v
		}
		if p.CurrentEmployee != nil {
			v := *p.CurrentEmployee
			p.CurrentEmployee = &v
		}
		out.Positions[i] = p
	}
	copy(out.Connections, d.Connections)
	return out
}

func (d Data) Find(id string) (PositionNode, bool) {
	for _, p := range d.Positions {
		if p.ID == id {
			return p, true
		}
	}
	return PositionNode{}, false
}

// Index builds a hierarchy index over the chart's reporting lines.
func (d Data) Index() (*hierarchy.Index, error) {
	nodes := make([]hierarchy.Node, 0, len(d.Positions))
	for _, p := range d.Positions {
		nodes = append(nodes, hierarchy.Node{ID: p.ID, ParentID: p.ParentID()})
	}
	return hierarchy.NewIndex(nodes)
}

// WithPosition returns a copy with node appended, and a connection from its
// parent when it has one.
func (d Data) WithPosition(node PositionNode) (Data, error) {
	if _, exists := d.Find(node.ID); exists {
		return Data{}, fmt.Errorf("%w: %s", ErrDuplicatePosition, node.ID)
	}
	out := d.Clone()
	out.Positions = append(out.Positions, node)
	if parent := node.ParentID(); parent != "" {
		out.Connections = append(out.Connections, Connection{From: parent, To: node.ID})
	}
	if err := out.Validate(); err != nil {
		return Data{}, err
	}
	return out, nil
}

// WithoutPosition returns a copy with id removed along with every connection
// touching it. Positions that still report to id block the removal.
func (d Data) WithoutPosition(id string) (Data, error) {
	if _, ok := d.Find(id); !ok {
		return Data{}, fmt.Errorf("%w: %s", ErrPositionNotInChart, id)
	}
	out := Data{
		Positions:   make([]PositionNode, 0, len(d.Positions)),
		Connections: make([]Connection, 0, len(d.Connections)),
	}
	for _, p := range d.Clone().Positions {
		if p.ID == id {
			continue
		}
		if p.ParentID() == id {
			return Data{}, fmt.Errorf("%w: %s reports to %s", ErrPositionHasReports, p.ID, id)
		}
		out.Positions = append(out.Positions, p)
	}
	for _, c := range d.Connections {
		if c.From == id || c.To == id {
			continue
		}
		out.Connections = append(out.Connections, c)
	}
	return out, nil
}

// WithPlacements returns a copy with coordinates replaced for the given ids.
func (d Data) WithPlacements(points map[string]hierarchy.Point) (Data, error) {
	out := d.Clone()
	for id := range points {
		if _, ok := d.Find(id); !ok {
			return Data{}, fmt.Errorf("%w: %s", ErrPositionNotInChart, id)
		}
	}
	for i := range out.Positions {
		if pt, ok := points[out.Positions[i].ID]; ok {
			out.Positions[i].X = pt.X
			out.Positions[i].Y = pt.Y
		}
	}
	return out, nil
}
