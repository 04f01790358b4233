package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retail-bank/models"
)

func sample() []models.Transaction {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []models.Transaction{
		{ID: "1", Time: at, Description: "Kira, Mart", Amount: decimal.RequireFromString("-4500"), Channel: models.ChannelWire, Counterparty: "TR330006100519786457841326"},
		{ID: "2", Time: at.Add(-time.Hour), Description: "Maaş ödemesi", Amount: decimal.RequireFromString("24500.5"), Channel: models.ChannelWire, Counterparty: "Alternatif Teknoloji"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0][0] != "Date" || records[0][2] != "Amount" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][1] != "Kira, Mart" || records[1][2] != "-4500.00" {
		t.Fatalf("first row = %v", records[1])
	}
	if records[2][0] != "2024-03-01 08:30" || records[2][2] != "24500.50" {
		t.Fatalf("second row = %v", records[2])
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, PDF, "Hesap Özeti", sample()); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("not a PDF: %q", buf.Bytes()[:8])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, XLSX, "", sample()); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatal("not a zip container")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": CSV, "PDF": PDF, " xlsx ": XLSX, "csv": CSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("docx: %v", err)
	}
}
