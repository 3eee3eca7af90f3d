package models

import "time"

// JobStatus is the lifecycle state of a queued query
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobError   JobStatus = "ERROR"
)

// Job is a query submitted through the API
type Job struct {
	ID         string       `json:"id" example:"4c1f6d1e-8a5b-4e55-9d43-5b0c9f1f2a11"`
	Query      Query        `json:"query"`
	Status     JobStatus    `json:"status" example:"PENDING"`
	Result     *QueryResult `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
