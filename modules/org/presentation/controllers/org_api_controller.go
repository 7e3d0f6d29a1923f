package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/orgchart/modules/org/services"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/constants"
	"github.com/iota-uz/orgchart/pkg/httpapi"
	"github.com/iota-uz/orgchart/pkg/middleware"
)

const (
	codeInvalidQuery  = "ORG_INVALID_QUERY"
	codeActorRequired = "ORG_ACTOR_REQUIRED"

	defaultMaxUploadBytes int64 = 32 << 20
)

type OrgAPIController struct {
	staffing  *services.StaffingService
	charts    *services.ChartService
	approvals *services.ApprovalService
	imports   *services.ImportService
	exports   *services.ExportService
	apiPrefix string
	probes    *OpsProbes

	// MaxUploadBytes caps import request bodies. Zero means the default.
	MaxUploadBytes int64
}

func NewOrgAPIController(
	staffing *services.StaffingService,
	charts *services.ChartService,
	approvals *services.ApprovalService,
	imports *services.ImportService,
	exports *services.ExportService,
) *OrgAPIController {
	return &OrgAPIController{
		staffing:  staffing,
		charts:    charts,
		approvals: approvals,
		imports:   imports,
		exports:   exports,
		apiPrefix: "/org/api",
	}
}

func (c *OrgAPIController) Key() string {
	return c.apiPrefix
}

func (c *OrgAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.ProvideActor())

	handle := func(path, endpoint string, h http.HandlerFunc, methods ...string) {
		api.HandleFunc(path, c.instrumentAPI(endpoint, h)).Methods(methods...)
	}

	handle("/positions", "positions.create", c.CreatePosition, http.MethodPost)
	handle("/positions", "positions.list", c.ListPositions, http.MethodGet)
	handle("/positions/{id}:reparent", "positions.reparent", c.ReparentPosition, http.MethodPatch)
	handle("/positions/{id}", "positions.delete", c.DeletePosition, http.MethodDelete)
	handle("/positions/{id}/occupant", "positions.occupant", c.GetOccupant, http.MethodGet)
	handle("/positions/{id}/vacancy", "positions.vacancy", c.GetVacancy, http.MethodGet)
	handle("/positions/{id}/history", "positions.history", c.GetOccupancyHistory, http.MethodGet)
	handle("/positions/{id}/ancestors", "positions.ancestors", c.GetAncestors, http.MethodGet)
	handle("/positions/{id}/children", "positions.children", c.GetChildren, http.MethodGet)

	handle("/employees", "employees.create", c.CreateEmployee, http.MethodPost)
	handle("/employees", "employees.list", c.ListEmployees, http.MethodGet)
	handle("/employees/{id}:deactivate", "employees.deactivate", c.DeactivateEmployee, http.MethodPost)
	handle("/employees/{id}/history", "employees.history", c.GetEmployeeHistory, http.MethodGet)

	handle("/assignments", "assignments.create", c.CreateAssignment, http.MethodPost)
	handle("/assignments/expiring", "assignments.expiring", c.ListExpiringAssignments, http.MethodGet)
	handle("/assignments/{id}:end", "assignments.end", c.EndAssignment, http.MethodPost)
	handle("/assignments/{id}/remaining", "assignments.remaining", c.GetDaysUntilEnd, http.MethodGet)

	handle("/charts", "charts.create", c.CreateChart, http.MethodPost)
	handle("/charts", "charts.list", c.ListCharts, http.MethodGet)
	handle("/charts/active", "charts.active", c.GetActiveChart, http.MethodGet)
	handle("/charts/{id}", "charts.get", c.GetChart, http.MethodGet)
	handle("/charts/{id}:activate", "charts.activate", c.ActivateChart, http.MethodPost)
	handle("/charts/{id}:rollback", "charts.rollback", c.RollbackChart, http.MethodPost)
	handle("/charts/{id}:sandbox", "charts.sandbox", c.CreateSandbox, http.MethodPost)
	handle("/charts/{id}/data", "charts.data.replace", c.ReplaceChartData, http.MethodPut)
	handle("/charts/{id}/data", "charts.data.patch", c.PatchChartData, http.MethodPatch)
	handle("/charts/{id}/positions", "charts.positions.add", c.AddChartPosition, http.MethodPost)
	handle("/charts/{id}/positions/{positionID}", "charts.positions.remove", c.RemoveChartPosition, http.MethodDelete)
	handle("/charts/{id}/layout", "charts.layout", c.ApplyChartLayout, http.MethodPost)
	handle("/charts/{id}/placements", "charts.placements", c.UpdateChartPlacements, http.MethodPut)
	handle("/charts/{id}/history", "charts.history", c.GetChartHistory, http.MethodGet)
	handle("/charts/{id}/snapshots", "charts.snapshots", c.ListChartSnapshots, http.MethodGet)
	handle("/charts/{id}/snapshots/{snapshotID}:restore", "charts.snapshots.restore", c.RestoreChartSnapshot, http.MethodPost)
	handle("/charts/{id}/diff", "charts.diff", c.DiffChart, http.MethodGet)
	handle("/charts/{id}/export", "charts.export", c.ExportChart, http.MethodGet)
	handle("/charts/{id}/stats", "charts.stats", c.GetChartStats, http.MethodGet)
	handle("/charts/{id}/approvals", "charts.approvals.request", c.RequestApproval, http.MethodPost)

	handle("/approvals", "approvals.list", c.ListApprovals, http.MethodGet)
	handle("/approvals/{id}", "approvals.get", c.GetApproval, http.MethodGet)
	handle("/approvals/{id}:resolve", "approvals.resolve", c.ResolveApproval, http.MethodPost)
	handle("/approvals/{id}:cancel", "approvals.cancel", c.CancelApproval, http.MethodPost)

	handle("/imports", "imports.create", c.Import, http.MethodPost)
	handle("/imports:validate", "imports.validate", c.ValidateImport, http.MethodPost)
	handle("/imports/template", "imports.template", c.GetImportTemplate, http.MethodGet)
	handle("/imports/{id}", "imports.get", c.GetImportLog, http.MethodGet)

	if c.probes != nil {
		handle("/ops/health", "ops.health", c.GetOpsHealth, http.MethodGet)
	}
}

func (c *OrgAPIController) CreatePosition(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var in services.CreatePositionInput
	if err := decodeJSON(r.Body, &in); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	p, err := c.staffing.CreatePosition(r.Context(), in)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (c *OrgAPIController) ListPositions(w http.ResponseWriter, r *http.Request) {
	out, err := c.staffing.ListPositions(r.Context(), strings.TrimSpace(r.URL.Query().Get("department")))
	if err != nil {
		writeServiceError(w, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type reparentRequest struct {
	ReportsTo *string `json:"reports_to"`
}

func (c *OrgAPIController) ReparentPosition(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var req reparentRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	p, err := c.staffing.UpdateReportsTo(r.Context(), mux.Vars(r)["id"], req.ReportsTo)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *OrgAPIController) DeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := c.staffing.DeletePosition(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, requestIDFrom(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type occupantResponse struct {
	PositionID string             `json:"position_id"`
	AsOf       string             `json:"as_of,omitempty"`
	Vacant     bool               `json:"vacant"`
	Occupant   *services.Occupant `json:"occupant"`
}

func (c *OrgAPIController) GetOccupant(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "as_of is invalid")
		return
	}
	id := mux.Vars(r)["id"]
	occ, err := c.staffing.CurrentOccupant(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, occupantResponse{
		PositionID: id,
		AsOf:       formatDate(asOf),
		Vacant:     occ == nil,
		Occupant:   occ,
	})
}

func (c *OrgAPIController) GetVacancy(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "as_of is invalid")
		return
	}
	id := mux.Vars(r)["id"]
	vacant, err := c.staffing.IsVacant(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, occupantResponse{PositionID: id, AsOf: formatDate(asOf), Vacant: vacant})
}

func (c *OrgAPIController) GetOccupancyHistory(w http.ResponseWriter, r *http.Request) {
	out, err := c.staffing.OccupancyHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetAncestors(w http.ResponseWriter, r *http.Request) {
	out, err := c.staffing.Ancestors(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetChildren(w http.ResponseWriter, r *http.Request) {
	out, err := c.staffing.Children(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createEmployeeRequest struct {
	EmployeeNumber string `json:"employee_number"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	HireDate       string `json:"hire_date"`
}

func (c *OrgAPIController) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var req createEmployeeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	hireDate, err := parseDate(req.HireDate)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "hire_date is invalid")
		return
	}
	e, err := c.staffing.CreateEmployee(r.Context(), services.CreateEmployeeInput{
		EmployeeNumber: req.EmployeeNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		HireDate:       hireDate,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (c *OrgAPIController) ListEmployees(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "active is invalid")
			return
		}
		activeOnly = v
	}
	out, err := c.staffing.ListEmployees(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	if err := c.staffing.DeactivateEmployee(r.Context(), id); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *OrgAPIController) GetEmployeeHistory(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.staffing.EmployeeHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createAssignmentRequest struct {
	PositionID string    `json:"position_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Kind       string    `json:"kind"`
	Notes      string    `json:"notes"`
}

func (c *OrgAPIController) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var req createAssignmentRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "start_date is invalid")
		return
	}
	var endDate *time.Time
	if strings.TrimSpace(req.EndDate) != "" {
		v, err := parseDate(req.EndDate)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "end_date is invalid")
			return
		}
		endDate = &v
	}
	a, err := c.staffing.CreateAssignment(r.Context(), services.CreateAssignmentInput{
		PositionID: req.PositionID,
		EmployeeID: req.EmployeeID,
		StartDate:  start,
		EndDate:    endDate,
		Kind:       req.Kind,
		Notes:      req.Notes,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type endAssignmentRequest struct {
	EndDate string `json:"end_date" validate:"required"`
	Notes   string `json:"notes"`
}

func (c *OrgAPIController) EndAssignment(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	var req endAssignmentRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, err.Error())
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "end_date is invalid")
		return
	}
	a, err := c.staffing.EndAssignment(r.Context(), id, endDate, req.Notes)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (c *OrgAPIController) ListExpiringAssignments(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()
	asOf, err := parseDate(q.Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "as_of is invalid")
		return
	}
	within := 30
	if raw := strings.TrimSpace(q.Get("within_days")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "within_days is invalid")
			return
		}
		within = v
	}
	out, err := c.staffing.ListExpiringAssignments(r.Context(), asOf, within)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgAPIController) GetDaysUntilEnd(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "as_of is invalid")
		return
	}
	days, err := c.staffing.DaysUntilEnd(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AssignmentID uuid.UUID `json:"assignment_id"`
		DaysUntilEnd *int      `json:"days_until_end"`
	}{id, days})
}

func requestIDFrom(r *http.Request) string {
	if id, ok := composables.UseRequestID(r.Context()); ok {
		return id
	}
	return strings.TrimSpace(r.Header.Get(constants.RequestIDHeader))
}

// requireActor resolves the X-Actor-ID header bound by ProvideActor.
func requireActor(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, codeActorRequired, constants.ActorIDHeader+" header is required")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, requestID, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, name+" is not a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

// parseDate accepts a calendar day or an RFC3339 timestamp; blank is the
// zero time.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.CodeInternal, err.Error())
}

func errorMeta(requestID string) map[string]string {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	return meta
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	orgAPIErrors.WithLabelValues(code).Inc()
	_ = httpapi.WriteError(w, status, code, message, errorMeta(requestID))
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
