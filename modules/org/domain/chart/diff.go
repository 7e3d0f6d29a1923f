package chart

import "sort"

// Modification lists the fields that changed on a position present in both
// versions.
type Modification struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

type Diff struct {
	Added              []string       `json:"added"`
	Removed            []string       `json:"removed"`
	Modified           []Modification `json:"modified"`
	ConnectionsAdded   []Connection   `json:"connections_added"`
	ConnectionsRemoved []Connection   `json:"connections_removed"`
}

func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0 &&
		len(d.ConnectionsAdded) == 0 && len(d.ConnectionsRemoved) == 0
}

// DiffVersions compares two chart payloads by position id. Order of
// positions and connections is irrelevant; a position that exists in both
// with different coordinates or attributes is modified, never removed and
// re-added.
func DiffVersions(a, b Data) Diff {
	before := make(map[string]PositionNode, len(a.Positions))
	for _, p := range a.Positions {
		before[p.ID] = p
	}
	after := make(map[string]PositionNode, len(b.Positions))
	for _, p := range b.Positions {
		after[p.ID] = p
	}

	out := Diff{
		Added:              []string{},
		Removed:            []string{},
		Modified:           []Modification{},
		ConnectionsAdded:   []Connection{},
		ConnectionsRemoved: []Connection{},
	}
	for id, old := range before {
		cur, ok := after[id]
		if !ok {
			out.Removed = append(out.Removed, id)
			continue
		}
		if fields := changedFields(old, cur); len(fields) > 0 {
			out.Modified = append(out.Modified, Modification{ID: id, Fields: fields})
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			out.Added = append(out.Added, id)
		}
	}

	oldConns := connectionSet(a.Connections)
	newConns := connectionSet(b.Connections)
	for c := range newConns {
		if _, ok := oldConns[c]; !ok {
			out.ConnectionsAdded = append(out.ConnectionsAdded, c)
		}
	}
	for c := range oldConns {
		if _, ok := newConns[c]; !ok {
			out.ConnectionsRemoved = append(out.ConnectionsRemoved, c)
		}
	}

	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Slice(out.Modified, func(i, j int) bool { return out.Modified[i].ID < out.Modified[j].ID })
	sortConnections(out.ConnectionsAdded)
	sortConnections(out.ConnectionsRemoved)
	return out
}

func changedFields(a, b PositionNode) []string {
	var fields []string
	if a.X != b.X || a.Y != b.Y {
		fields = append(fields, "placement")
	}
	if a.Title != b.Title {
		fields = append(fields, "title")
	}
	if a.Department != b.Department {
		fields = append(fields, "department")
	}
	if a.Level != b.Level {
		fields = append(fields, "level")
	}
	if a.ParentID() != b.ParentID() {
		fields = append(fields, "reports_to")
	}
	if a.Responsibilities != b.Responsibilities {
		fields = append(fields, "responsibilities")
	}
	if employeeName(a) != employeeName(b) {
		fields = append(fields, "current_employee")
	}
	return fields
}

func employeeName(p PositionNode) string {
	if p.CurrentEmployee == nil {
		return ""
	}
	return *p.CurrentEmployee
}

func connectionSet(conns []Connection) map[Connection]struct{} {
	out := make(map[Connection]struct{}, len(conns))
	for _, c := range conns {
		out[c] = struct{}{}
	}
	return out
}

func sortConnections(conns []Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].From != conns[j].From {
			return conns[i].From < conns[j].From
		}
		return conns[i].To < conns[j].To
	})
}
