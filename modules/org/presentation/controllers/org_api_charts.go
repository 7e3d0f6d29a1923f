package controllers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
	"github.com/iota-uz/orgchart/modules/org/services"
)

type createChartRequest struct {
	Name        string     `json:"name"`
	Department  string     `json:"department"`
	Description string     `json:"description"`
	Data        chart.Data `json:"chart_data"`
}

func (c *OrgAPIController) CreateChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req createChartRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	out, err := c.charts.CreateChart(r.Context(), services.CreateChartInput{
		Name:        req.Name,
		Department:  req.Department,
		Description: req.Description,
		Data:        req.Data,
		Actor:       actor,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (c *OrgAPIController) ListCharts(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()
	params := chart.FindParams{
		Department: strings.TrimSpace(q.Get("department")),
		Status:     chart.Status(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "limit is invalid")
			return
		}
		params.Limit = v
	}
	out, err := c.charts.ListCharts(r.Context(), params)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetActiveChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	department := strings.TrimSpace(r.URL.Query().Get("department"))
	if department == "" {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "department is required")
		return
	}
	out, err := c.charts.GetActive(r.Context(), department)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if out == nil {
		writeAPIError(w, http.StatusNotFound, requestID, services.CodeNotFound, fmt.Sprintf("no active chart for %s", department))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.charts.GetChart(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) ActivateChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.charts.ActivateChart(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) RollbackChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.charts.ActivateVersion(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createSandboxRequest struct {
	NameSuffix string `json:"name_suffix"`
}

func (c *OrgAPIController) CreateSandbox(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req createSandboxRequest
	if !decodeOptionalJSON(w, r, requestID, &req) {
		return
	}
	out, err := c.charts.CreateSandbox(r.Context(), id, actor, req.NameSuffix)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type replaceDataRequest struct {
	Data  chart.Data `json:"chart_data"`
	Notes string     `json:"notes"`
}

func (c *OrgAPIController) ReplaceChartData(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req replaceDataRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	out, err := c.charts.SaveSandboxEdit(r.Context(), id, req.Data, req.Notes, actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PatchChartData applies an RFC 6902 document to the sandbox data. Notes
// travel in the query string since the body is the patch itself.
func (c *OrgAPIController) PatchChartData(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	defer func() { _ = r.Body.Close() }()
	patch, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "unable to read body")
		return
	}
	out, err := c.charts.ApplySandboxPatch(r.Context(), id, patch, r.URL.Query().Get("notes"), actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) AddChartPosition(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var node chart.PositionNode
	if err := decodeJSON(r.Body, &node); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	out, err := c.charts.AddPosition(r.Context(), id, node, actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (c *OrgAPIController) RemoveChartPosition(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	out, err := c.charts.RemovePosition(r.Context(), id, mux.Vars(r)["positionID"], actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) ApplyChartLayout(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	out, err := c.charts.ApplyLayout(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type placementsRequest struct {
	Points map[string]hierarchy.Point `json:"points"`
}

func (c *OrgAPIController) UpdateChartPlacements(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req placementsRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	out, err := c.charts.UpdatePlacements(r.Context(), id, req.Points, actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetChartHistory(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.charts.GetVersionHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) ListChartSnapshots(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.charts.ListSnapshots(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) RestoreChartSnapshot(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	snapshotID, ok := pathUUID(w, r, requestID, "snapshotID")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	out, err := c.charts.RestoreSnapshot(r.Context(), id, snapshotID, actor)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DiffChart compares the chart with ?against=, or with its parent when the
// parameter is omitted.
func (c *OrgAPIController) DiffChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	var (
		diff chart.Diff
		err  error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("against")); raw != "" {
		against, perr := uuid.Parse(raw)
		if perr != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "against is not a valid uuid")
			return
		}
		diff, err = c.charts.DiffVersions(r.Context(), against, id)
	} else {
		diff, err = c.charts.DiffAgainstParent(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (c *OrgAPIController) ExportChart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := services.ExportOptions{}
	if raw := strings.TrimSpace(q.Get("live")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "live is invalid")
			return
		}
		opts.LiveOccupants = v
	}
	asOf, err := parseDate(q.Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "as_of is invalid")
		return
	}
	opts.AsOf = asOf

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	var renderer services.DocumentRenderer
	ext := ""
	switch format {
	case "", "json":
		doc, err := c.exports.Document(r.Context(), id, opts)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	case "csv":
		renderer, ext = spreadsheet.CSVRenderer{}, "csv"
	case "xlsx":
		renderer, ext = spreadsheet.WorkbookRenderer{}, "xlsx"
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "format must be one of json, csv, xlsx")
		return
	}

	content, contentType, err := c.exports.Render(r.Context(), id, opts, renderer)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "org-chart-"+id.String()+"."+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (c *OrgAPIController) GetChartStats(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.exports.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (c *OrgAPIController) RequestApproval(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req notesRequest
	if !decodeOptionalJSON(w, r, requestID, &req) {
		return
	}
	out, err := c.approvals.RequestApproval(r.Context(), id, actor, req.Notes)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (c *OrgAPIController) ListApprovals(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()
	status := changerequest.Status(strings.TrimSpace(q.Get("status")))
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "limit is invalid")
			return
		}
		limit = v
	}

	var (
		out []*changerequest.ChangeRequest
		err error
	)
	switch status {
	case changerequest.StatusPending:
		out, err = c.approvals.ListPending(r.Context())
	case "", changerequest.StatusApproved, changerequest.StatusRejected, changerequest.StatusCancelled:
		out, err = c.approvals.ListRecent(r.Context(), limit)
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "status is invalid")
		return
	}
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if status != "" && status != changerequest.StatusPending {
		filtered := make([]*changerequest.ChangeRequest, 0, len(out))
		for _, cr := range out {
			if cr.Status == status {
				filtered = append(filtered, cr)
			}
		}
		out = filtered
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetApproval(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.approvals.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type resolveRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

func (c *OrgAPIController) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	out, err := c.approvals.Resolve(r.Context(), id, actor, req.Decision, req.Notes)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) CancelApproval(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req notesRequest
	if !decodeOptionalJSON(w, r, requestID, &req) {
		return
	}
	out, err := c.approvals.Cancel(r.Context(), id, actor, req.Notes)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeOptionalJSON decodes the body when there is one.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, requestID string, out any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := decodeJSON(r.Body, out); err != nil && err != io.EOF {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return false
	}
	return true
}
