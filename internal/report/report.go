// Package report renders completed cases as two-sheet XLSX workbooks.
package report

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/origin-cli/internal/model"
)

// Sheet names.
const (
	SummarySheet   = "Analysis Summary"
	MaterialsSheet = "Material Analysis"
)

const dateLayout = "2006-01-02 15:04"

var materialHeaders = []string{
	"Material Name",
	"Country of Origin",
	"HS Code",
	"Cost per Pair",
	"Problematic",
	"Analysis Notes",
}

// Export builds the workbook for c. The material sheet is omitted when
// materials is empty.
func Export(c *model.AnalysisCase, materials []model.MaterialRecord) (*xlsx.File, error) {
	if c == nil {
		return nil, eris.New("report: nil case")
	}
	f := xlsx.NewFile()
	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	bold.ApplyFont = true

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}
	addRow(summary, bold, "Field", "Value")
	for _, kv := range summaryRows(c) {
		addRow(summary, nil, kv[0], kv[1])
	}

	if len(materials) == 0 {
		return f, nil
	}
	sheet, err := f.AddSheet(MaterialsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add material sheet")
	}
	addRow(sheet, bold, materialHeaders...)
	for _, m := range materials {
		row := sheet.AddRow()
		row.AddCell().SetString(m.Name)
		row.AddCell().SetString(m.CountryOfOrigin)
		row.AddCell().SetString(m.HSCode)
		cost := row.AddCell()
		if m.CostPerUnit != nil {
			cost.SetFloat(*m.CostPerUnit)
		}
		if m.Problematic {
			row.AddCell().SetString("Yes")
		} else {
			row.AddCell().SetString("No")
		}
		row.AddCell().SetString(m.Notes)
	}
	return f, nil
}

// Write exports c and streams the workbook to w.
func Write(w io.Writer, c *model.AnalysisCase, materials []model.MaterialRecord) error {
	f, err := Export(c, materials)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

// Filename is the download name for a case report.
func Filename(c *model.AnalysisCase) string {
	return "origin_analysis_" + c.ID + ".xlsx"
}

func summaryRows(c *model.AnalysisCase) [][2]string {
	date := ""
	if !c.SubmittedAt.IsZero() {
		date = c.SubmittedAt.Format(dateLayout)
	}
	manufacturer := c.Manufacturer
	if manufacturer == "" {
		manufacturer = "Not Found"
	}
	hs := c.FinalHSCode
	if hs == "" {
		hs = "Not Found"
	}
	reason := c.Reason
	if reason == "" {
		reason = "Analysis incomplete"
	}
	missing := "None"
	if len(c.MissingFields) > 0 {
		missing = strings.Join(c.MissingFields, ", ")
	}
	return [][2]string{
		{"File Name", c.Filename},
		{"Analysis Date", date},
		{"Manufacturer", manufacturer},
		{"Final HS Code", hs},
		{"Final Result", c.Verdict.Label()},
		{"Reason", reason},
		{"Missing Fields", missing},
	}
}

func addRow(sheet *xlsx.Sheet, style *xlsx.Style, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		cell.SetString(v)
		if style != nil {
			cell.SetStyle(style)
		}
	}
}
