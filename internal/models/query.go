package models

import "time"

// Supported portal targets
const (
	TargetAnnualFiling = "annual-filing"
	TargetDINStatus    = "din-status"
)

// Query is the identifier checked against one portal target. It does not change during a run.
type Query struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	Identifier  string    `json:"identifier"`
	RequestedAt time.Time `json:"requested_at"`
	NoCache     bool      `json:"no_cache,omitempty"`
}

// SessionStatus is the terminal classification of a verification session
type SessionStatus string

const (
	StatusPending       SessionStatus = "PENDING"
	StatusSucceeded     SessionStatus = "SUCCEEDED"
	StatusFailed        SessionStatus = "FAILED"
	StatusIndeterminate SessionStatus = "INDETERMINATE"
)

// ChallengeState is a state of the per-round challenge state machine
type ChallengeState string

const (
	StateAwaitingChallenge ChallengeState = "AWAITING_CHALLENGE"
	StateSolving           ChallengeState = "SOLVING"
	StateSubmitted         ChallengeState = "SUBMITTED"
	StateSucceeded         ChallengeState = "SUCCEEDED"
	StateRejected          ChallengeState = "REJECTED"
	StateIndeterminate     ChallengeState = "INDETERMINATE"
	StateFailed            ChallengeState = "FAILED"
)

// Snapshot points at the persisted UI state captured for diagnosis
type Snapshot struct {
	URL            string    `json:"url,omitempty"`
	HTMLPath       string    `json:"html_path,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// RoundReport summarises one challenge round
type RoundReport struct {
	Round         int            `json:"round"`
	Attempts      int            `json:"attempts"`
	Refreshes     int            `json:"refreshes"`
	SolveFailures int            `json:"solve_failures"`
	Outcome       ChallengeState `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
	Snapshot      *Snapshot      `json:"snapshot,omitempty"`
}

// VerificationSession tracks the challenge rounds of one query
type VerificationSession struct {
	QueryID      string         `json:"query_id"`
	Identifier   string         `json:"identifier"`
	Round        int            `json:"round"`
	Attempt      int            `json:"attempt"`
	State        ChallengeState `json:"state"`
	Status       SessionStatus  `json:"status"`
	Rounds       []RoundReport  `json:"rounds"`
	Retries      int            `json:"retries"`
	Refreshes    int            `json:"refreshes"`
	LastSnapshot *Snapshot      `json:"last_snapshot,omitempty"`
}

// NewVerificationSession creates a pending session for a query
func NewVerificationSession(q Query) *VerificationSession {
	return &VerificationSession{
		QueryID:    q.ID,
		Identifier: q.Identifier,
		Status:     StatusPending,
	}
}

// Terminal reports whether the session reached a final status
func (s *VerificationSession) Terminal() bool {
	return s.Status != StatusPending
}

// Record appends a finished round and folds its counters into the session
func (s *VerificationSession) Record(r RoundReport) {
	s.Rounds = append(s.Rounds, r)
	if r.Attempts > 1 {
		s.Retries += r.Attempts - 1
	}
	s.Refreshes += r.Refreshes
	if r.Snapshot != nil {
		s.LastSnapshot = r.Snapshot
	}
}

// CaptchaChallenge is one captured challenge image
type CaptchaChallenge struct {
	QueryID    string    `json:"query_id"`
	Round      int       `json:"round"`
	Attempt    int       `json:"attempt"`
	Image      []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// SolveResult is the outcome of solving one challenge
type SolveResult struct {
	Text            string `json:"text"`
	Valid           bool   `json:"valid"`
	Attempt         int    `json:"attempt"`
	ServiceAttempts int    `json:"service_attempts"`
	Reason          string `json:"reason,omitempty"`
}

// QueryResult is what a finished run reports to its caller
type QueryResult struct {
	ID         string        `json:"id"`
	Target     string        `json:"target"`
	Identifier string        `json:"identifier"`
	Status     SessionStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Rounds     []RoundReport `json:"rounds"`
	Retries    int           `json:"retries"`
	Refreshes  int           `json:"refreshes"`
	Columns    []string      `json:"columns,omitempty"`
	Records    []FinalRecord `json:"records"`
	ExportPath string        `json:"export_path,omitempty"`
	Snapshot   *Snapshot     `json:"snapshot,omitempty"`
	Cached     bool          `json:"cached"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMs int64         `json:"duration_ms"`
}
