package models

import "time"

type JobType string

const JobTypeScrape JobType = "SCRAPE"

type JobStatus string

const (
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusFinished JobStatus = "FINISHED"
	JobStatusFailed   JobStatus = "FAILED"
)

type Strategy string

const (
	StrategyAuto      Strategy = "auto"
	StrategyHeuristic Strategy = "heuristic"
	StrategySemantic  Strategy = "semantic"
)

// Job drives one pipeline run over a domain. It may be resumed by ID.
type Job struct {
	ID         string        `json:"id"`
	Domain     string        `json:"domain"`
	Homepage   string        `json:"homepage"`
	Type       JobType       `json:"type"`
	Status     JobStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	CrawlDelay time.Duration `json:"crawl_delay"`
	Locale     string        `json:"locale"`
	Strategy   Strategy      `json:"strategy,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (j *Job) IsActive() bool {
	return j.Status == JobStatusRunning
}
