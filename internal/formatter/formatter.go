// package formatter renders view-history records and engine transitions as plain text, JSON and CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/desertthunder/viewsync/internal/history"
	"github.com/desertthunder/viewsync/internal/models"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "text", "json" or "csv"; an empty string means text.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or csv)", v)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to text.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// Records encodes records in the given format.
func Records(records []models.Record, format Format, pretty bool) ([]byte, error) {
	switch format {
	case FormatJSON:
		return RecordsToJSON(records, pretty)
	case FormatCSV:
		return RecordsToCSV(records)
	default:
		return RecordsToText(records)
	}
}

// RecordsToCSV converts records to CSV with columns: ID, Entry, Status, Position, Context, Updated
func RecordsToCSV(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Entry", "Status", "Position", "Context", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.EntryID,
			string(rec.ExtendedStatus),
			strconv.FormatFloat(rec.LastTimeReached, 'f', -1, 64),
			rec.PlaybackContext,
			formatUnix(rec.UpdatedAt),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// RecordsToJSON encodes records as a JSON array, indented when pretty is set.
func RecordsToJSON(records []models.Record, pretty bool) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	if pretty {
		return json.MarshalIndent(records, "", "  ")
	}
	return json.Marshal(records)
}

// RecordsToText renders one line per record.
func RecordsToText(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	if len(records) == 0 {
		buf.WriteString("No records\n")
		return buf.Bytes(), nil
	}

	for _, rec := range records {
		buf.WriteString(RecordLine(&rec))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RecordLine summarizes one record, e.g. "entry-1 [PLAYBACK_STARTED] at 1:05 (id abc)".
func RecordLine(rec *models.Record) string {
	if rec == nil {
		return "no record"
	}

	line := fmt.Sprintf("%s [%s] at %s", rec.EntryID, rec.Status().Short(), FormatPosition(rec.LastTimeReached))
	if rec.ID != "" {
		line += fmt.Sprintf(" (id %s)", rec.ID)
	}
	return line
}

// Transition renders one engine transition for the console.
func Transition(u history.TransitionUpdate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %s", u.Kind, u.EntryID)
	if u.Attempt > 1 {
		fmt.Fprintf(&b, " attempt %d", u.Attempt)
	}
	if s := u.Update.String(); s != "" {
		fmt.Fprintf(&b, " %s", s)
	}
	if u.Err != nil {
		fmt.Fprintf(&b, ": %v", u.Err)
	}
	return b.String()
}

// FormatPosition renders seconds as m:ss or h:mm:ss.
func FormatPosition(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// WriteRecords writes records to path, choosing the format from the extension.
func WriteRecords(records []models.Record, path string) (Format, error) {
	format := FormatFromPath(path)
	data, err := Records(records, format, true)
	if err != nil {
		return format, fmt.Errorf("failed to encode records: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return format, fmt.Errorf("failed to write records file: %w", err)
	}
	return format, nil
}
