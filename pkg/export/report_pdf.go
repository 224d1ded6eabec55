package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReportTask is one checklist line in the closing report.
type ReportTask struct {
	Description string
	Result      string
	Observation string
}

// ReportData carries everything the closing report PDF needs.
type ReportData struct {
	OrderTitle     string
	ClientName     string
	Address        string
	TechnicianName string
	ScheduledDate  string
	FinishedAt     time.Time
	Comments       string
	Tasks          []ReportTask
}

// ReportRenderer produces the closing report PDF for a finished work order.
type ReportRenderer struct{}

// NewReportRenderer constructs a report renderer.
func NewReportRenderer() *ReportRenderer {
	return &ReportRenderer{}
}

// Render creates the PDF document.
func (r *ReportRenderer) Render(data ReportData) ([]byte, error) {
	if data.OrderTitle == "" {
		return nil, fmt.Errorf("report requires an order title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "INSPECTION REPORT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, data.OrderTitle, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	meta := [][2]string{
		{"Client", data.ClientName},
		{"Address", data.Address},
		{"Technician", data.TechnicianName},
		{"Scheduled", data.ScheduledDate},
		{"Finished", data.FinishedAt.Format("2006-01-02 15:04")},
	}
	for _, pair := range meta {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 6, pair[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, pair[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 8, "Checklist Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 8, "Result", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 8, "Observation", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, task := range data.Tasks {
		pdf.CellFormat(100, 7, task.Description, "1", 0, "", false, 0, "")
		pdf.CellFormat(20, 7, task.Result, "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 7, task.Observation, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	if data.Comments != "" {
		pdf.Ln(5)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Closing comments", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, data.Comments, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
