package models

// Status is the processing state of a job or export.
type Status string

const (
	StatusPending Status = "Pending"
	StatusRunning Status = "Running"
	StatusSuccess Status = "Success"
	StatusWarn    Status = "Warn"
	StatusFail    Status = "Fail"
)

// AllStatuses lists every known status in histogram order.
var AllStatuses = []Status{StatusWarn, StatusSuccess, StatusPending, StatusRunning, StatusFail}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether a run can treat a job in this status as finished.
// Warn is a finished job that regressed against the live data.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusWarn || s == StatusFail
}
