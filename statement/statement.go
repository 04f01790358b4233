// Package statement renders a read-only list of transactions as a
// downloadable CSV, PDF or XLSX statement.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"

	"retail-bank/models"
	"retail-bank/money"
)

// Entries is how many of the newest transactions a statement carries.
const Entries = 20

const dateLayout = "2006-01-02 15:04"

type Format string

const (
	CSV  Format = "csv"
	PDF  Format = "pdf"
	XLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown statement format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, PDF, XLSX:
		return f, nil
	case "":
		return CSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case PDF:
		return "application/pdf"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

func (f Format) Filename() string {
	return "statement." + string(f)
}

var header = []string{"Date", "Description", "Amount", "Channel", "Counterparty"}

const amountColumn = 2

func row(e models.Transaction) []string {
	return []string{e.Time.Format(dateLayout), e.Description, money.Format(e.Amount), e.Channel, e.Counterparty}
}

// Write renders entries in format f. title heads the PDF variant.
func Write(w io.Writer, f Format, title string, entries []models.Transaction) error {
	switch f {
	case CSV:
		return WriteCSV(w, entries)
	case PDF:
		return WritePDF(w, title, entries)
	case XLSX:
		return WriteXLSX(w, entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func WriteCSV(w io.Writer, entries []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WritePDF(w io.Writer, title string, entries []models.Transaction) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, tr(title))
	pdf.Ln(12)

	widths := []float64{32, 58, 28, 20, 52}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "", false, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 10)
	for _, e := range entries {
		for i, cell := range row(e) {
			align := ""
			if i == amountColumn {
				align = "R"
			}
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(7)
	}
	return pdf.Output(w)
}

func WriteXLSX(w io.Writer, entries []models.Transaction) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transactions")
	if err != nil {
		return err
	}

	r := sheet.AddRow()
	for _, h := range header {
		r.AddCell().SetValue(h)
	}
	for _, e := range entries {
		r = sheet.AddRow()
		for i, c := range row(e) {
			if i == amountColumn {
				amount, _ := e.Amount.Float64()
				r.AddCell().SetFloatWithFormat(amount, "#,##0.00")
				continue
			}
			r.AddCell().SetValue(c)
		}
	}
	return file.Write(w)
}
