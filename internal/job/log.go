package job

import (
	"bytes"
	"context"
	"encoding/csv"
	"regexp"
	"strconv"

	"github.com/openaddresses/batch-sub000/internal/logs"
	"gorm.io/gorm"
)

// LogLine is one numbered, redacted log event.
type LogLine struct {
	ID        int    `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// tokenParam matches access-token style query parameters embedded in logged URLs.
var tokenParam = regexp.MustCompile(`(?i)([?&](?:access_token|token|api_key|apikey|key)=)[^&\s"'<>]+`)

// Redact masks token query parameter values in msg.
func Redact(msg string) string {
	return tokenParam.ReplaceAllString(msg, "${1}[REDACTED]")
}

// Log fetches the job's log stream and returns its lines numbered from 1.
func Log(ctx context.Context, db *gorm.DB, r logs.Retriever, id int64) ([]LogLine, error) {
	j, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	events, err := r.Events(ctx, j.Loglink)
	if err != nil {
		return nil, err
	}
	lines := make([]LogLine, 0, len(events))
	for i, e := range events {
		lines = append(lines, LogLine{ID: i + 1, Timestamp: e.Timestamp, Message: Redact(e.Message)})
	}
	return lines, nil
}

// FormatCSV renders lines as id,timestamp,message rows with a header.
func FormatCSV(lines []LogLine) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "timestamp", "message"}); err != nil {
		return nil, err
	}
	for _, l := range lines {
		if err := w.Write([]string{strconv.Itoa(l.ID), strconv.FormatInt(l.Timestamp, 10), l.Message}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
