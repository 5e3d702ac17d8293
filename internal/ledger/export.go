package ledger

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
	"ID", "Webhook ID", "Event ID", "Attempt", "Status",
	"Status Code", "Response Time (ms)", "Error", "Timestamp",
}

// Export renders the attempt log for a webhook (or all webhooks when
// webhookID is empty) as JSON or CSV.
func (l *Ledger) Export(webhookID string, format ExportFormat) (string, error) {
	l.mu.RLock()
	source := l.attempts
	if webhookID != "" {
		source = l.byWebhook[webhookID]
	}
	attempts := make([]*domain.Attempt, len(source))
	copy(attempts, source)
	l.mu.RUnlock()

	switch format {
	case FormatJSON:
		return exportJSON(attempts)
	case FormatCSV:
		return exportCSV(attempts), nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidInput, format)
	}
}

func exportJSON(attempts []*domain.Attempt) (string, error) {
	if attempts == nil {
		attempts = []*domain.Attempt{}
	}
	data, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal attempts: %w", err)
	}
	return string(data), nil
}

// exportCSV writes every field double-quoted, with absent optional fields
// rendered as empty strings. encoding/csv only quotes when necessary, so the
// rows are built by hand.
func exportCSV(attempts []*domain.Attempt) string {
	var b strings.Builder
	writeCSVRow(&b, csvColumns)

	for _, a := range attempts {
		row := []string{
			a.ID,
			a.WebhookID,
			a.EventID,
			strconv.Itoa(a.AttemptNumber),
			string(a.Status),
			optionalInt(a.StatusCode),
			optionalInt(a.ResponseTimeMs),
			optionalString(a.ErrorMessage),
			a.Timestamp.Format(time.RFC3339),
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

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
