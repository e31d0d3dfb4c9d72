package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat selects the serialization used when exporting entries.
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatNDJSON ExportFormat = "ndjson"
	FormatCSV    ExportFormat = "csv"
)

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Export serializes entries in the given format, for offline review and
// compliance handoff.
func Export(entries []*Entry, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(entries, "", "  ")
	case FormatNDJSON:
		return exportNDJSON(entries)
	case FormatCSV:
		return exportCSV(entries)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func exportNDJSON(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode audit entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "eventType", "severity", "userId", "email", "ipAddress", "userAgent", "requestId", "message", "details"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to encode audit details: %w", err)
			}
			details = string(b)
		}
		record := []string{
			e.Timestamp.Format(time.RFC3339),
			string(e.EventType),
			string(e.Severity),
			e.UserID,
			e.Email,
			e.IPAddress,
			e.UserAgent,
			e.RequestID,
			e.Message,
			details,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
