package spreadsheet

import (
	"bytes"
	"context"

	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
)

// WorkbookRenderer renders a chart document as an xlsx workbook.
type WorkbookRenderer struct{}

func (WorkbookRenderer) Render(_ context.Context, doc interchange.Document) ([]byte, string, error) {
	content, err := ExportWorkbook(doc, interchange.Flatten(doc.Data, doc.GeneratedAt))
	if err != nil {
		return nil, "", err
	}
	return content, ContentTypeXLSX, nil
}

// CSVRenderer renders a chart document as the flat CSV export.
type CSVRenderer struct{}

func (CSVRenderer) Render(_ context.Context, doc interchange.Document) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, interchange.Flatten(doc.Data, doc.GeneratedAt)); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ContentTypeCSV, nil
}
