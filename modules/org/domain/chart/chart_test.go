package chart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
)

var now = time.Date(2024, 5, 10, 14, 30, 5, 0, time.UTC)

func str(s string) *string { return &s }

func financeData() Data {
	return Data{
		Positions: []PositionNode{
			{ID: "CFO", Title: "Chief Financial Officer", Department: "Finance", Level: 1, CurrentEmployee: str("E1"), X: 1000, Y: 200},
			{ID: "ACC", Title: "Accountant", Department: "Finance", Level: 2, ReportsTo: str("CFO"), X: 400, Y: 800},
		},
		Connections: []Connection{{From: "CFO", To: "ACC"}},
	}
}

func TestParseData(t *testing.T) {
	d, err := ParseData([]byte(`{"positions":[{"id":"A","title":"t","department":"d","level":1,"reports_to":null,"responsibilities":"","current_employee":null,"x":1,"y":2}],"connections":[]}`))
	require.NoError(t, err)
	require.Len(t, d.Positions, 1)

	_, err = ParseData([]byte(`{"positions":[],"nodes":[]}`))
	require.ErrorIs(t, err, ErrInvalidData)

	empty, err := ParseData(nil)
	require.NoError(t, err)
	require.NotNil(t, empty.Positions)
}

func TestDataValidate(t *testing.T) {
	require.NoError(t, financeData().Validate())

	dup := financeData()
	dup.Positions = append(dup.Positions, PositionNode{ID: "ACC"})
	require.ErrorIs(t, dup.Validate(), ErrDuplicatePosition)

	dangling := financeData()
	dangling.Connections = append(dangling.Connections, Connection{From: "CFO", To: "GHOST"})
	require.ErrorIs(t, dangling.Validate(), ErrDanglingConnection)

	badParent := financeData()
	badParent.Positions[1].ReportsTo = str("GHOST")
	require.ErrorIs(t, badParent.Validate(), ErrDanglingReportsTo)

	cycle := financeData()
	cycle.Positions[0].ReportsTo = str("ACC")
	require.ErrorIs(t, cycle.Validate(), ErrReportingLineCycles)

	self := financeData()
	self.Connections = []Connection{{From: "CFO", To: "CFO"}}
	require.ErrorIs(t, self.Validate(), ErrInvalidData)
}

func TestDataClone_IsDeep(t *testing.T) {
	orig := financeData()
	cp := orig.Clone()
	*cp.Positions[1].ReportsTo = "X"
	*cp.Positions[0].CurrentEmployee = "E9"
	cp.Connections[0].To = "X"

	require.Equal(t, "CFO", *orig.Positions[1].ReportsTo)
	require.Equal(t, "E1", *orig.Positions[0].CurrentEmployee)
	require.Equal(t, "ACC", orig.Connections[0].To)
}

func TestDataWithPositionAndWithout(t *testing.T) {
	d := financeData()

	added, err := d.WithPosition(PositionNode{ID: "AUD", Title: "Auditor", ReportsTo: str("CFO")})
	require.NoError(t, err)
	require.Len(t, added.Positions, 3)
	require.Contains(t, added.Connections, Connection{From: "CFO", To: "AUD"})
	require.Len(t, d.Positions, 2)

	_, err = added.WithPosition(PositionNode{ID: "AUD"})
	require.ErrorIs(t, err, ErrDuplicatePosition)

	removed, err := added.WithoutPosition("AUD")
	require.NoError(t, err)
	require.Len(t, removed.Positions, 2)
	require.Equal(t, []Connection{{From: "CFO", To: "ACC"}}, removed.Connections)

	_, err = added.WithoutPosition("CFO")
	require.ErrorIs(t, err, ErrPositionHasReports)

	_, err = added.WithoutPosition("NOPE")
	require.ErrorIs(t, err, ErrPositionNotInChart)
}

func TestDataWithPlacements(t *testing.T) {
	d := financeData()
	moved, err := d.WithPlacements(map[string]hierarchy.Point{"ACC": {X: 5, Y: 6}})
	require.NoError(t, err)
	acc, _ := moved.Find("ACC")
	require.Equal(t, 5.0, acc.X)
	require.Equal(t, 6.0, acc.Y)

	_, err = d.WithPlacements(map[string]hierarchy.Point{"ZZZ": {}})
	require.ErrorIs(t, err, ErrPositionNotInChart)
}

func TestDiffVersions(t *testing.T) {
	a := financeData()
	b := financeData()
	b.Positions[1].X = 450
	b.Positions = append(b.Positions, PositionNode{ID: "AUD", ReportsTo: str("CFO")})
	b.Connections = append(b.Connections, Connection{From: "CFO", To: "AUD"})

	diff := DiffVersions(a, b)
	require.Equal(t, []string{"AUD"}, diff.Added)
	require.Empty(t, diff.Removed)
	require.Equal(t, []Modification{{ID: "ACC", Fields: []string{"placement"}}}, diff.Modified)
	require.Equal(t, []Connection{{From: "CFO", To: "AUD"}}, diff.ConnectionsAdded)
	require.False(t, diff.IsEmpty())

	back := DiffVersions(b, a)
	require.Equal(t, []string{"AUD"}, back.Removed)
	require.Equal(t, []Connection{{From: "CFO", To: "AUD"}}, back.ConnectionsRemoved)
}

func TestDiffVersions_OrderIndependent(t *testing.T) {
	a := financeData()
	b := financeData()
	b.Positions[0], b.Positions[1] = b.Positions[1], b.Positions[0]

	require.True(t, DiffVersions(a, b).IsEmpty())
	require.True(t, DiffVersions(a, a.Clone()).IsEmpty())
}

func TestDiffVersions_ReportsAttributeChanges(t *testing.T) {
	a := financeData()
	b := financeData()
	b.Positions[1].Title = "Senior Accountant"
	b.Positions[1].CurrentEmployee = str("E2")
	b.Positions[1].ReportsTo = nil

	diff := DiffVersions(a, b)
	require.Equal(t, []Modification{{ID: "ACC", Fields: []string{"title", "reports_to", "current_employee"}}}, diff.Modified)
}

func TestVersions(t *testing.T) {
	v, err := ParseVersion("1.0-sandbox")
	require.NoError(t, err)
	require.Equal(t, Version{1, 0}, v)

	v, err = ParseVersion("3")
	require.NoError(t, err)
	require.Equal(t, "3.0", v.String())

	_, err = ParseVersion("v1")
	require.ErrorIs(t, err, ErrInvalidVersion)

	require.Equal(t, "1.0-sandbox", SandboxVersion("1.0"))
	require.Equal(t, "1.0-sandbox", SandboxVersion("1.0-sandbox"))

	major, err := NextVersion(str("1.0"), nil, BumpMajor)
	require.NoError(t, err)
	require.Equal(t, "2.0", major)

	minor, err := NextVersion(str("1.0"), nil, BumpMinor)
	require.NoError(t, err)
	require.Equal(t, "1.1", minor)

	noParent, err := NextVersion(nil, nil, BumpMinor)
	require.NoError(t, err)
	require.Equal(t, "2.0", noParent)

	// a sibling sandbox already published 2.0; the next one must pass it
	floored, err := NextVersion(str("1.0"), str("2.0"), BumpMajor)
	require.NoError(t, err)
	require.Equal(t, "3.0", floored)

	floorNoParent, err := NextVersion(nil, str("2.3"), BumpMinor)
	require.NoError(t, err)
	require.Equal(t, "2.4", floorNoParent)
}

func TestNextVersion_StrictlyGreaterThanParent(t *testing.T) {
	for _, parent := range []string{"1.0", "1.9", "2.10", "10.0"} {
		for _, policy := range []BumpPolicy{BumpMajor, BumpMinor} {
			next, err := NextVersion(str(parent), nil, policy)
			require.NoError(t, err)
			pv, _ := ParseVersion(parent)
			nv, _ := ParseVersion(next)
			require.Equal(t, 1, nv.Compare(pv), "%s -> %s", parent, next)
		}
	}
}

func TestParseBumpPolicy(t *testing.T) {
	p, err := ParseBumpPolicy("")
	require.NoError(t, err)
	require.Equal(t, BumpMajor, p)
	p, err = ParseBumpPolicy("Minor")
	require.NoError(t, err)
	require.Equal(t, BumpMinor, p)
	_, err = ParseBumpPolicy("patch")
	require.Error(t, err)
}

func TestChartLifecycle(t *testing.T) {
	actor := uuid.New()
	base, err := New("Finance", "Finance", "", financeData(), actor, now)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, base.Status)
	require.Equal(t, InitialVersion, base.Version)
	require.Equal(t, base.ID, base.RootID)

	require.NoError(t, base.Activate(now))
	require.Equal(t, StatusActive, base.Status)

	sb, err := base.NewSandbox(actor, "Reorg", now)
	require.NoError(t, err)
	require.True(t, sb.IsSandbox)
	require.Equal(t, StatusSandbox, sb.Status)
	require.Equal(t, "1.0-sandbox", sb.Version)
	require.Equal(t, "Finance - Reorg", sb.Name)
	require.Equal(t, base.ID, *sb.ParentID)
	require.Equal(t, base.RootID, sb.RootID)

	_, err = sb.NewSandbox(actor, "", now)
	require.ErrorIs(t, err, ErrCloneOfSandbox)

	require.ErrorIs(t, base.ReplaceData(financeData(), now), ErrNotSandbox)
	require.NoError(t, sb.ReplaceData(financeData(), now))

	require.NoError(t, sb.SubmitForApproval(now))
	require.ErrorIs(t, sb.ReplaceData(financeData(), now), ErrNotEditable)
	require.ErrorIs(t, sb.SubmitForApproval(now), ErrInvalidTransition)

	require.NoError(t, sb.ReturnToSandbox(now))
	require.NoError(t, sb.SubmitForApproval(now))

	approver := uuid.New()
	require.NoError(t, sb.Publish(approver, "approved", "2.0", now))
	require.Equal(t, StatusActive, sb.Status)
	require.False(t, sb.IsSandbox)
	require.Equal(t, "2.0", sb.Version)
	require.Equal(t, approver, *sb.ApprovedBy)

	require.ErrorIs(t, base.Publish(approver, "", "3.0", now), ErrNotSandbox)
	require.NoError(t, base.Archive(now))
	require.ErrorIs(t, base.Archive(now), ErrInvalidTransition)
	require.NoError(t, base.Activate(now))
}

func TestChartActivate_RejectsSandbox(t *testing.T) {
	c := &Chart{Status: StatusPendingApproval, IsSandbox: true}
	require.ErrorIs(t, c.Activate(now), ErrInvalidTransition)
}

func TestNew_RequiresNameAndDepartment(t *testing.T) {
	_, err := New(" ", "Finance", "", Data{}, uuid.Nil, now)
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestSnapshotTags(t *testing.T) {
	require.Equal(t, "auto-20240510-143005", AutoTag(now))
	require.Equal(t, "save-20240510-143005", SaveTag(now))

	s := NewSnapshot(uuid.New(), TagSandboxInitial, "", financeData(), uuid.New(), now)
	require.True(t, DiffVersions(s.Data, financeData()).IsEmpty())
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(financeData())
	require.Equal(t, Stats{Total: 2, Occupied: 1, Vacant: 1, OccupancyPct: 50, Levels: 2}, s)
	require.Equal(t, Stats{}, ComputeStats(Data{}))
}
