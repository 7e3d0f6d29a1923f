package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"

	ChartSheet    = "Organigrama"
	StatsSheet    = "Estadisticas"
	TemplateSheet = "Plantilla"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var exportColumnWidths = []float64{12, 30, 20, 8, 12, 30, 25, 45, 12, 18}

// WriteCSV writes the flat export with a UTF-8 BOM so spreadsheet tools
// detect the encoding.
func WriteCSV(w io.Writer, rows []interchange.ExportRow) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(interchange.ExportHeaders); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.ID, r.Title, r.Department, strconv.Itoa(r.Level), r.ParentID, r.ParentTitle,
			r.CurrentEmployee, r.Responsibilities, r.Status, r.UpdatedAt,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTemplateCSV writes the import template with the import column names.
func WriteTemplateCSV(w io.Writer, rows []interchange.TabularRow) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(interchange.AllColumns()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

// newWorkbook returns a file whose only sheet is named first.
func newWorkbook(first string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", first); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	return f, nil
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, widths []float64) error {
	style, err := headerStyle(f)
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	for i, w := range widths {
		if i >= len(headers) {
			break
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func finish(f *excelize.File) ([]byte, error) {
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportWorkbook writes the flat export sheet and a statistics sheet.
func ExportWorkbook(doc interchange.Document, rows []interchange.ExportRow) ([]byte, error) {
	f, err := newWorkbook(ChartSheet)
	if err != nil {
		return nil, err
	}
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values())
	}
	if err := writeTable(f, ChartSheet, interchange.ExportHeaders, values, exportColumnWidths); err != nil {
		_ = f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(StatsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create stats sheet: %w", err)
	}
	stats := [][]any{
		{"Organigrama", doc.Name},
		{"Departamento", doc.Department},
		{"Version", doc.Version},
		{"Estado", string(doc.Status)},
		{"Total_Puestos", doc.Stats.Total},
		{"Ocupados", doc.Stats.Occupied},
		{"Vacantes", doc.Stats.Vacant},
		{"Porcentaje_Ocupacion", doc.Stats.OccupancyPct},
		{"Niveles", doc.Stats.Levels},
		{"Generado", doc.GeneratedAt.UTC().Format("2006-01-02 15:04")},
	}
	if err := writeTable(f, StatsSheet, []string{"Metrica", "Valor"}, stats, []float64{24, 40}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return finish(f)
}

// TemplateWorkbook writes the import template as a single-sheet workbook.
func TemplateWorkbook(rows []interchange.TabularRow) ([]byte, error) {
	f, err := newWorkbook(TemplateSheet)
	if err != nil {
		return nil, err
	}
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		row := []any{r.ID, r.Title, r.Department, r.ParentID, nil, r.Responsibilities, r.CurrentEmployee}
		if r.Level != nil {
			row[4] = *r.Level
		}
		values = append(values, row)
	}
	if err := writeTable(f, TemplateSheet, interchange.AllColumns(), values, []float64{12, 30, 20, 12, 8, 45, 25}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return finish(f)
}
