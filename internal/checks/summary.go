package checks

import (
	"fmt"
	"strings"

	"github.com/openaddresses/batch-sub000/internal/models"
)

// Conclusion is failure if any job failed, neutral if any needs review, and
// success otherwise.
func Conclusion(jobs []models.Job) string {
	conclusion := ConclusionSuccess
	for _, j := range jobs {
		switch j.Status {
		case models.StatusFail:
			return ConclusionFailure
		case models.StatusWarn:
			conclusion = ConclusionNeutral
		}
	}
	return conclusion
}

// Title is a one-line count of job outcomes.
func Title(jobs []models.Job) string {
	var ok, warn, fail int
	for _, j := range jobs {
		switch j.Status {
		case models.StatusSuccess:
			ok++
		case models.StatusWarn:
			warn++
		case models.StatusFail:
			fail++
		}
	}
	return fmt.Sprintf("%d passed, %d warning, %d failed", ok, warn, fail)
}

// Summary renders a markdown table of the run's jobs.
func Summary(jobs []models.Job) string {
	var b strings.Builder
	b.WriteString("| Job | Source | Layer | Name | Status |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, j := range jobs {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", j.ID, j.SourceName, j.Layer, j.Name, statusIcon(j.Status))
	}
	return b.String()
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusSuccess:
		return ":white_check_mark: Success"
	case models.StatusWarn:
		return ":warning: Warn"
	case models.StatusFail:
		return ":x: Fail"
	default:
		return string(s)
	}
}
