package report

import (
	"bytes"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
)

// PDFRenderer lays the report out on a single US Letter page. Output is
// byte-stable for a given Model.
type PDFRenderer struct{}

// Ext implements Renderer.
func (PDFRenderer) Ext() string { return "pdf" }

// Render implements Renderer.
func (PDFRenderer) Render(m *Model) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(50, 50, 50)
	pdf.SetAutoPageBreak(true, 50)
	pdf.SetCreationDate(m.GeneratedAt)
	pdf.SetModificationDate(m.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(reportTitle, true)
	pdf.SetAuthor(footerText(m), true)
	pdf.SetSubject(m.AdvisorID+" "+m.Record.Period, true)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	pdf.SetFooterFunc(func() {
		pdf.SetY(-72)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(153, 153, 153)
		for _, f := range footerLines(m) {
			pdf.CellFormat(width, 12, tr(f), "", 1, "C", false, 0, "")
		}
	})

	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(204, 0, 0)
	pdf.CellFormat(width, 28, reportTitle, "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(102, 102, 102)
	for _, h := range headerLines(m) {
		pdf.CellFormat(width, 16, tr(h), "", 1, "C", false, 0, "")
	}

	labelW := width * 0.55
	for _, s := range sections(m) {
		pdf.Ln(20)
		pdf.SetFont("Helvetica", "B", 15)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(width, 20, s.Title, "B", 1, "L", false, 0, "")
		pdf.Ln(6)

		pdf.SetFont("Helvetica", "", 11)
		for _, l := range s.Lines {
			pdf.SetTextColor(51, 51, 51)
			pdf.CellFormat(labelW, 16, tr(l.Label), "", 0, "L", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(width-labelW, 16, tr(l.Value), "", 1, "R", false, 0, "")
		}
		if s.Emphasis != nil {
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "B", 13)
			pdf.SetTextColor(204, 0, 0)
			pdf.CellFormat(labelW, 18, s.Emphasis.Label, "", 0, "L", false, 0, "")
			pdf.CellFormat(width-labelW, 18, s.Emphasis.Value, "", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrapf(err, "report: render pdf %s/%s", m.AdvisorID, m.Record.Period)
	}
	return buf.Bytes(), nil
}
