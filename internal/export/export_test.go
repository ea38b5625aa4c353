package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"media-pipeline/pkg/models"
)

func sampleData() (*models.Stats, []*models.DownloadRecord) {
	stats := &models.Stats{
		TotalDownloads:  2,
		FailedDownloads: 1,
		TotalSize:       1024,
		SuccessRate:     50,
	}
	records := []*models.DownloadRecord{
		{
			ID:          "r1",
			RequesterID: 7,
			URL:         "https://youtube.com/watch?v=x",
			Domain:      "youtube.com",
			Engine:      models.EngineYtdlp,
			MediaType:   models.MediaTypeVideo,
			Quality:     "best",
			Size:        1024,
			Duration:    60,
			Status:      "completed",
			CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:          "r2",
			RequesterID: 8,
			Status:      "failed",
			Error:       "extraction error",
			CreatedAt:   time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
		},
	}
	return stats, records
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	stats, records := sampleData()

	if err := NewExporter(path, FormatCSV).Export(stats, records); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2 records", len(rows))
	}
	if rows[1][0] != "r1" || rows[1][3] != "youtube.com" {
		t.Errorf("first record row = %v", rows[1])
	}
	if rows[2][11] != "extraction error" {
		t.Errorf("error column = %q", rows[2][11])
	}
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	stats, records := sampleData()

	if err := NewExporter(path, FormatXLSX).Export(stats, records); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	total, err := f.GetCellValue("Summary", "B1")
	if err != nil {
		t.Fatal(err)
	}
	if total != "2" {
		t.Errorf("total downloads cell = %q, want 2", total)
	}

	id, err := f.GetCellValue("Downloads", "A2")
	if err != nil {
		t.Fatal(err)
	}
	if id != "r1" {
		t.Errorf("first record id = %q", id)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.bin")
	stats, records := sampleData()

	if err := NewExporter(path, Format("bin")).Export(stats, records); err == nil {
		t.Error("expected error for unsupported format")
	}
}
