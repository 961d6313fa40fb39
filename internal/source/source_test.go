package source

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

var header = []string{"Number", "State", "Category", "Priority", "Opened At", "Notes"}

func TestReadCSV(t *testing.T) {
	data := "Number,State,Category,Priority,Opened At,Notes\n" +
		"INC1,Closed,Network,1 - Critical,2024-01-02 10:00:00,\"line one\nline two\"\n" +
		",,,,,\n" +
		"INC2,New,Database\n"
	rows, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank row dropped, got %d rows", len(rows))
	}
	if rows[0].Line != 2 || rows[0].Values["Notes"] != "line one\nline two" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].Line != 5 || rows[1].Values["Category"] != "Database" || rows[1].Values["Priority"] != "" {
		t.Fatalf("unexpected short row %+v", rows[1])
	}
}

func TestReadCSVEmpty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty csv")
	}
}

func TestReadFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.xlsx")
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	row := []string{"INC1", "Closed", "Network", "2 - High", "2024-01-02 10:00:00", "rebooted"}
	if err := f.SetSheetRow("Sheet1", "A2", &row); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 1 || rows[0].Line != 2 || rows[0].Values["Priority"] != "2 - High" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestReadFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.json")
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error")
	}
}
