package logindex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaycore/relay/internal/domain"
)

type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// csvColumns is the fixed export column order. Consumers parse this by
// position, so it must not change.
var csvColumns = []string{
	"ID", "Webhook ID", "Event ID", "Event Type", "Status",
	"Payload", "Response", "Response Time (ms)", "Timestamp",
}

// Export renders the records matching the filter as JSON or CSV.
func (ix *Index) Export(opts FilterOptions, format ExportFormat) (string, error) {
	records := ix.Filter(opts)

	switch format {
	case FormatJSON:
		return exportJSON(records)
	case FormatCSV:
		return exportCSV(records), nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidInput, format)
	}
}

func exportJSON(records []domain.LogRecord) (string, error) {
	if records == nil {
		records = []domain.LogRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal log records: %w", err)
	}
	return string(data), nil
}

// exportCSV writes every field double-quoted, with absent optional fields
// rendered as empty strings. encoding/csv only quotes when necessary, so the
// rows are built by hand.
func exportCSV(records []domain.LogRecord) string {
	var b strings.Builder
	writeCSVRow(&b, csvColumns)

	for _, r := range records {
		responseTime := ""
		if r.ResponseTimeMs != nil {
			responseTime = strconv.Itoa(*r.ResponseTimeMs)
		}
		row := []string{
			r.ID,
			r.WebhookID,
			r.EventID,
			r.EventType,
			r.Status,
			string(r.Payload),
			r.Response,
			responseTime,
			r.Timestamp.Format(time.RFC3339),
		}
		writeCSVRow(&b, row)
	}
	return b.String()
}

func writeCSVRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
