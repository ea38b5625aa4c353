package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"media-pipeline/pkg/models"
)

// Format represents a supported export format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const dateFormat = "2006-01-02 15:04:05"

var recordColumns = []string{
	"ID", "Requester", "URL", "Domain", "Engine", "Media Type",
	"Quality", "Size", "Duration", "From Cache", "Status", "Error", "Created At",
}

// Exporter writes usage statistics and audit rows to report files
type Exporter struct {
	filePath string
	format   Format
}

// NewExporter creates an exporter for the given destination
func NewExporter(filePath string, format Format) *Exporter {
	return &Exporter{filePath: filePath, format: format}
}

// Export writes the stats summary and record rows
func (e *Exporter) Export(stats *models.Stats, records []*models.DownloadRecord) error {
	if err := os.MkdirAll(filepath.Dir(e.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	switch e.format {
	case FormatCSV:
		return e.exportCSV(records)
	case FormatXLSX:
		return e.exportXLSX(stats, records)
	default:
		return fmt.Errorf("unsupported export format: %s", e.format)
	}
}

func recordRow(rec *models.DownloadRecord) []string {
	return []string{
		rec.ID,
		strconv.FormatInt(rec.RequesterID, 10),
		rec.URL,
		rec.Domain,
		string(rec.Engine),
		string(rec.MediaType),
		rec.Quality,
		strconv.FormatInt(rec.Size, 10),
		strconv.Itoa(rec.Duration),
		strconv.FormatBool(rec.FromCache),
		rec.Status,
		rec.Error,
		rec.CreatedAt.Format(dateFormat),
	}
}

func (e *Exporter) exportCSV(records []*models.DownloadRecord) error {
	file, err := os.Create(e.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(recordColumns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportXLSX(stats *models.Stats, records []*models.DownloadRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	const recordsSheet = "Downloads"

	f.SetSheetName("Sheet1", summarySheet)
	summary := [][]interface{}{
		{"Total Downloads", stats.TotalDownloads},
		{"Failed Downloads", stats.FailedDownloads},
		{"Cache Hits", stats.CacheHits},
		{"Total Size (bytes)", stats.TotalSize},
		{"Total Duration (s)", stats.TotalDuration},
		{"Downloads Today", stats.DownloadsToday},
		{"Success Rate (%)", stats.SuccessRate},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(recordsSheet); err != nil {
		return err
	}
	header := make([]interface{}, len(recordColumns))
	for i, c := range recordColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(recordsSheet, "A1", &header); err != nil {
		return err
	}
	for i, rec := range records {
		row := recordRow(rec)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(recordsSheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(e.filePath)
}
