package database

import "time"

// RunReport is the summary of one posting run.
type RunReport struct {
	ID         int64
	RunID      string
	DryRun     bool
	Targets    int
	Attempted  int
	Succeeded  int
	Failed     int
	Fallback   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Review is a stored review row.
type Review struct {
	ID         string
	SiteID     string
	UserName   string
	Rating     int
	Title      string
	Content    string
	Status     string
	IsApproved bool
	CreatedAt  string
}

// Stats holds aggregate database statistics.
type Stats struct {
	TotalSites      int
	ApprovedSites   int
	TotalReviews    int
	PendingReviews  int
	ApprovedReviews int
	Runs            int
}
