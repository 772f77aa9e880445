package models

import "time"

// Run is a batch container grouping jobs created together.
type Run struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Live      bool       `gorm:"default:false;index" json:"live"`
	Closed    bool       `gorm:"default:false" json:"closed"`
	GitHub    GitHubMeta `gorm:"embedded;embeddedPrefix:github_" json:"github"`
	CreatedAt time.Time  `json:"created"`
	UpdatedAt time.Time  `json:"updated"`
}

// GitHubMeta links a run to the pull request and check it reports to.
type GitHubMeta struct {
	URL     string `gorm:"size:512" json:"url,omitempty"`
	Ref     string `gorm:"size:255" json:"ref,omitempty"`
	SHA     string `gorm:"size:40" json:"sha,omitempty"`
	CheckID int64  `json:"check,omitempty"`
}

// HasCheck reports whether the run reports to a GitHub check.
func (r *Run) HasCheck() bool {
	return r.GitHub.CheckID != 0
}
