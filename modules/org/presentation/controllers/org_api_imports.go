package controllers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
	"github.com/iota-uz/orgchart/modules/org/services"
	"github.com/iota-uz/orgchart/pkg/httpapi"
)

type importResponse struct {
	Chart  *chart.Chart             `json:"chart,omitempty"`
	Report interchange.ImportReport `json:"report"`
	DryRun bool                     `json:"dry_run"`
	Error  *httpapi.ErrorEnvelope   `json:"error,omitempty"`
}

type importUpload struct {
	name    string
	content []byte
	meta    services.ImportMeta
}

// readImportUpload accepts a multipart form with a "file" part, or a raw
// body described by query parameters.
func (c *OrgAPIController) readImportUpload(w http.ResponseWriter, r *http.Request) (*importUpload, error) {
	limit := c.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	field := func(key string) string { return strings.TrimSpace(r.URL.Query().Get(key)) }
	up := &importUpload{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("file part is required")
		}
		defer func() { _ = file.Close() }()
		if up.content, err = io.ReadAll(file); err != nil {
			return nil, err
		}
		up.name = header.Filename
		field = func(key string) string {
			if v := strings.TrimSpace(r.FormValue(key)); v != "" {
				return v
			}
			return strings.TrimSpace(r.URL.Query().Get(key))
		}
	} else {
		defer func() { _ = r.Body.Close() }()
		var err error
		if up.content, err = io.ReadAll(r.Body); err != nil {
			return nil, err
		}
		up.name = field("file_name")
	}

	dryRun := false
	if raw := field("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("dry_run is invalid")
		}
		dryRun = v
	}
	up.meta = services.ImportMeta{
		ChartName:   field("name"),
		Department:  field("department"),
		Description: field("description"),
		FileName:    up.name,
		DryRun:      dryRun,
	}
	return up, nil
}

func (c *OrgAPIController) Import(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	actor, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	up, err := c.readImportUpload(w, r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, err.Error())
		return
	}
	up.meta.Actor = actor

	created, report, err := c.imports.ImportFile(r.Context(), up.content, up.meta)
	if err != nil {
		var svcErr *services.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == services.CodeImportRejected {
			writeJSON(w, svcErr.Status, importResponse{
				Report: report,
				DryRun: up.meta.DryRun,
				Error: &httpapi.ErrorEnvelope{
					Code:    svcErr.Code,
					Message: svcErr.Message,
					Meta:    errorMeta(requestID),
				},
			})
			return
		}
		writeServiceError(w, requestID, err)
		return
	}
	status := http.StatusCreated
	if up.meta.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, importResponse{Chart: created, Report: report, DryRun: up.meta.DryRun})
}

type validateImportResponse struct {
	FileName string               `json:"file_name"`
	Valid    bool                 `json:"valid"`
	Issues   []services.FileIssue `json:"issues"`
}

func (c *OrgAPIController) ValidateImport(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	up, err := c.readImportUpload(w, r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, err.Error())
		return
	}
	issues := c.imports.ValidateFile(up.name, up.content)
	if issues == nil {
		issues = []services.FileIssue{}
	}
	writeJSON(w, http.StatusOK, validateImportResponse{FileName: up.name, Valid: len(issues) == 0, Issues: issues})
}

func (c *OrgAPIController) GetImportTemplate(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	rows := c.imports.GenerateTemplate()

	var (
		buf         bytes.Buffer
		contentType string
		fileName    string
	)
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "xlsx":
		content, err := spreadsheet.TemplateWorkbook(rows)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		buf.Write(content)
		contentType = spreadsheet.ContentTypeXLSX
		fileName = "org-chart-template.xlsx"
	case "csv":
		if err := spreadsheet.WriteTemplateCSV(&buf, rows); err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		contentType = spreadsheet.ContentTypeCSV
		fileName = "org-chart-template.csv"
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, codeInvalidQuery, "format must be one of csv, xlsx")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (c *OrgAPIController) GetImportLog(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	id, ok := pathUUID(w, r, requestID, "id")
	if !ok {
		return
	}
	out, err := c.imports.GetImportLog(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
