package reports

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"qms/dashboard-service/internal/analytics"
	"qms/dashboard-service/internal/store"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func (f Format) Filename(window analytics.Window) string {
	return fmt.Sprintf("visits_%s_%s.%s", window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), f)
}

var exportHeader = []string{
	"visit_id", "queue_code", "customer_name", "service", "desk", "teller", "status",
	"joined_on", "start_serving_time", "completed_on",
	"waiting_time", "serving_time", "total_time",
}

// ExportVisits writes every visit joined between start and end, inclusive
// by day, oldest first.
func (s *Service) ExportVisits(ctx context.Context, start, end time.Time, format Format, w io.Writer) error {
	window := analytics.RangeWindow(start.In(s.loc), end.In(s.loc))
	visits, err := s.store.ListVisits(ctx, store.VisitFilter{TimeField: store.JoinedOn, From: window.Start, To: window.End})
	if err != nil {
		return fmt.Errorf("list visits: %w", err)
	}
	rows, err := s.named(ctx, visits)
	if err != nil {
		return err
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, s.exportRecord(row))
	}
	switch format {
	case FormatXLSX:
		return s.writeXLSX(w, records)
	case FormatCSV:
		return writeCSV(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (s *Service) exportRecord(row VisitRow) []string {
	return []string{
		row.VisitID,
		row.QueueCode,
		row.CustomerName,
		row.ServiceName,
		row.DeskName,
		row.TellerName,
		row.Status,
		s.formatTime(&row.JoinedOn),
		s.formatTime(row.StartServingTime),
		s.formatTime(row.CompletedOn),
		formatMinutes(row.WaitingTime),
		formatMinutes(row.ServingTime),
		formatMinutes(row.TotalTime),
	}
}

func writeCSV(w io.Writer, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func (s *Service) writeXLSX(w io.Writer, records [][]string) error {
	const sheet = "Visits"
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	last, _ := excelize.ColumnNumberToName(len(exportHeader))
	_ = f.SetCellStyle(sheet, "A1", last+"1", headerStyle)
	_ = f.SetColWidth(sheet, "A", last, 20)

	for r, record := range records {
		for c, value := range record {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if c >= len(record)-3 && value != "" {
				if n, err := strconv.ParseFloat(value, 64); err == nil {
					_ = f.SetCellValue(sheet, cell, n)
					continue
				}
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := f.Write(w); err != nil {
		s.logger.Error("write xlsx failed", zap.Error(err))
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (s *Service) formatTime(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.In(s.loc).Format(time.RFC3339)
}

func formatMinutes(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
