package jobs

import "time"

// Status is the lifecycle state of a login job.
//
// NOTE: These values appear in API responses and are part of the stable
// caller-facing contract.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusRunning       Status = "running"
	StatusWaitingForOTP Status = "waiting_for_otp"
	StatusWaitingFor2FA Status = "waiting_for_2fa"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// LoginJob is a point-in-time snapshot of one tracked login attempt.
// Mutation happens only inside the registry; callers always receive copies.
type LoginJob struct {
	ID        string    `json:"job_id"`
	Status    Status    `json:"status"`
	Phone     string    `json:"phone"`
	RunLabel  string    `json:"run_label"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams configures a new login job.
type CreateParams struct {
	Phone    string
	Force    bool
	Headless bool
	Proxy    string
	RunLabel string
}

// Observer receives job lifecycle notifications. All methods may be called
// concurrently.
type Observer interface {
	JobCreated()
	JobCompleted()
	JobFailed()
	BrowserOpened()
	BrowserClosed()
}

// nopObserver is used when no Observer is configured.
type nopObserver struct{}

func (nopObserver) JobCreated()    {}
func (nopObserver) JobCompleted()  {}
func (nopObserver) JobFailed()     {}
func (nopObserver) BrowserOpened() {}
func (nopObserver) BrowserClosed() {}
