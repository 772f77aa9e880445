// Package notify delivers pipeline alerts (job errors, regressions,
// unresolved coverage) to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/openaddresses/batch-sub000/internal/models"
)

// Color constants for alert severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Notifier is implemented by each platform.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Message is a platform-neutral alert.
type Message struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string
	Fields   []Field
}

// Field is a key-value pair displayed in an alert.
type Field struct {
	Name  string
	Value string
	Short bool
}

// SeverityColor maps a severity string to a sidebar color.
func SeverityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Multi fans a message out to every notifier. All are attempted; failures
// are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards messages.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Message) error { return nil }

func jobFields(j *models.Job) []Field {
	return []Field{
		{Name: "Job", Value: strconv.FormatInt(j.ID, 10), Short: true},
		{Name: "Run", Value: strconv.FormatInt(j.RunID, 10), Short: true},
		{Name: "Layer", Value: j.Layer, Short: true},
		{Name: "Name", Value: j.Name, Short: true},
	}
}

// JobError builds the alert sent when a message is added to the error ledger.
func JobError(j *models.Job, message string) Message {
	return Message{
		Title:    fmt.Sprintf("%s failed review", j.SourceName),
		Body:     message,
		Severity: "warning",
		Color:    ColorWarning,
		Fields:   jobFields(j),
	}
}

// Unresolved builds the alert sent when a job's coverage cannot be classified.
func Unresolved(j *models.Job, keys []string) Message {
	fields := append(jobFields(j), Field{Name: "Coverage keys", Value: fmt.Sprint(keys)})
	return Message{
		Title:    fmt.Sprintf("%s has unrecognised coverage", j.SourceName),
		Body:     "The job completed but its coverage did not match any known region shape.",
		Severity: "info",
		Color:    ColorInfo,
		Fields:   fields,
	}
}
