package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/example/deepfake-detector/internal/domain"
)

const (
	// Filename is the attachment name offered for downloads.
	Filename = "deepfake_report.pdf"
	// ContentType is the MIME type of rendered reports.
	ContentType = "application/pdf"

	title = "Deepfake Detection Report"

	explanation = "This AI model predicts whether the uploaded image is real or deepfake based on facial inconsistencies.\n" +
		"Model: Xception CNN\n" +
		"Indicators: Pixel-level artifacts, texture anomalies, asymmetry, etc."
)

// documentDate is stamped as creation and modification date so identical
// inputs render identical bytes.
var documentDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Render lays out the single-page report for one prediction.
func Render(label domain.Label, confidence float64) ([]byte, error) {
	return render(label, confidence, true)
}

func render(label domain.Label, confidence float64, compress bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetCreationDate(documentDate)
	pdf.SetModificationDate(documentDate)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(title, false)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Ln(10)
	pdf.CellFormat(0, 10, fmt.Sprintf("Prediction: %s", label), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 10, fmt.Sprintf("Confidence: %s", domain.FormatConfidence(confidence)), "", 1, "L", false, 0, "")
	pdf.Ln(10)
	pdf.MultiCell(0, 10, explanation, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}
