package model

import "time"

// ApplicationStatus is the pipeline stage of an application.
type ApplicationStatus string

// Application pipeline stages.
const (
	ApplicationApplied      ApplicationStatus = "applied"
	ApplicationReviewing    ApplicationStatus = "reviewing"
	ApplicationInterviewing ApplicationStatus = "interviewing"
	ApplicationOffered      ApplicationStatus = "offered"
	ApplicationHired        ApplicationStatus = "hired"
	ApplicationRejected     ApplicationStatus = "rejected"
)

// Valid reports whether s is a known pipeline stage.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationApplied, ApplicationReviewing, ApplicationInterviewing,
		ApplicationOffered, ApplicationHired, ApplicationRejected:
		return true
	}
	return false
}

// Job status constants.
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
)

// Job is an open position candidates apply to.
type Job struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Department string    `json:"department,omitempty"`
	Location   string    `json:"location,omitempty"`
	Status     string    `json:"status"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Candidate is a person applying to jobs.
type Candidate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Application links a candidate to a job. AIScore is set once the resume
// scoring pipeline has produced a result.
type Application struct {
	ID          string            `json:"id"`
	JobID       string            `json:"jobId"`
	CandidateID string            `json:"candidateId"`
	Status      ApplicationStatus `json:"status"`
	AIScore     *float64          `json:"aiScore,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ApplicationPatch lists the application fields to merge. Nil fields are
// left untouched.
type ApplicationPatch struct {
	Status  *ApplicationStatus
	AIScore *float64
	Notes   *string
}

// Apply merges the patch into a.
func (p ApplicationPatch) Apply(a *Application) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.AIScore != nil {
		score := *p.AIScore
		a.AIScore = &score
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
}

// Notification is the resolved output of a send_notification action.
// Delivery is left to a notifier.
type Notification struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflowId"`
	ApplicationID string    `json:"applicationId,omitempty"`
	Recipient     string    `json:"recipient"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}
