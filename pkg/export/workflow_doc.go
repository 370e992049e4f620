package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// WorkflowSection is one generated block of an AI workflow document.
type WorkflowSection struct {
	Title string
	Body  string
}

// WorkflowDocData carries the rendered output of a generation run.
type WorkflowDocData struct {
	ProductCode  string
	ProductTitle string
	Subject      string
	Sections     []WorkflowSection
}

// WorkflowDocExporter renders generation results into a PDF document.
type WorkflowDocExporter struct{}

// NewWorkflowDocExporter constructs a workflow document exporter.
func NewWorkflowDocExporter() *WorkflowDocExporter {
	return &WorkflowDocExporter{}
}

// Render creates the PDF for a finished generation run.
func (e *WorkflowDocExporter) Render(data WorkflowDocData) ([]byte, error) {
	if len(data.Sections) == 0 {
		return nil, fmt.Errorf("workflow document requires at least one section")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("%s - %s", data.ProductCode, data.ProductTitle), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Onderwerp: %s", data.Subject), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	for _, section := range data.Sections {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, section.Title, "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, section.Body, "", "", false)
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render workflow document: %w", err)
	}
	return buf.Bytes(), nil
}
