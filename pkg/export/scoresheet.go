package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// ScoreSheetCriteria is one gradable row of the score sheet.
type ScoreSheetCriteria struct {
	Onderdeel string
	Criteria  string
	Levels    []string
}

// ScoreSheetData carries everything printed on the assessment score sheet.
type ScoreSheetData struct {
	ProductCode      string
	ProductTitle     string
	Version          string
	Cohort           string
	VerificationCode string
	LevelLabels      []string
	Criteria         []ScoreSheetCriteria
}

// ScoreSheetExporter renders the per-download assessment score sheet. Every
// sheet carries the download's verification code so submitted exams can be
// traced back to the school that downloaded the package.
type ScoreSheetExporter struct{}

// NewScoreSheetExporter constructs a score sheet exporter.
func NewScoreSheetExporter() *ScoreSheetExporter {
	return &ScoreSheetExporter{}
}

// Render creates the PDF score sheet.
func (e *ScoreSheetExporter) Render(data ScoreSheetData) ([]byte, error) {
	if data.VerificationCode == "" {
		return nil, fmt.Errorf("score sheet requires a verification code")
	}
	if len(data.LevelLabels) == 0 {
		return nil, fmt.Errorf("score sheet requires rubric level labels")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Beoordelingsformulier %s - %s", data.ProductCode, data.ProductTitle), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Versie %s | Cohort %s", data.Version, data.Cohort), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Verificatiecode: %s", data.VerificationCode), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	const labelWidth = 70.0
	levelWidth := (277.0 - labelWidth) / float64(len(data.LevelLabels))

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(labelWidth, 8, "Onderdeel / criterium", "1", 0, "C", false, 0, "")
	for _, label := range data.LevelLabels {
		pdf.CellFormat(levelWidth, 8, label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	lastOnderdeel := ""
	for _, row := range data.Criteria {
		if row.Onderdeel != lastOnderdeel {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(labelWidth+levelWidth*float64(len(data.LevelLabels)), 7, row.Onderdeel, "1", 1, "", false, 0, "")
			lastOnderdeel = row.Onderdeel
		}
		pdf.SetFont("Arial", "", 8)
		pdf.CellFormat(labelWidth, 7, row.Criteria, "1", 0, "", false, 0, "")
		for i := range data.LevelLabels {
			value := ""
			if i < len(row.Levels) {
				value = row.Levels[i]
			}
			pdf.CellFormat(levelWidth, 7, truncate(value, 60), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Dit formulier hoort bij download %s en mag niet zonder code worden ingediend.", data.VerificationCode), "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render score sheet: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
