package models

// Run statuses.
const (
	RunProcessing = "processing"
	RunCompleted  = "completed"
	RunPartial    = "partial" // fewer records than input identifiers
	RunFailed     = "failed"  // no records at all
)

// RunRequest is the payload for POST /api/v1/runs.
type RunRequest struct {
	// ABNs is the ordered identifier list. Required.
	ABNs []string `json:"abns" binding:"required,min=1,max=5000"`

	// Workers is the number of parallel sessions. Default: config value.
	Workers int `json:"workers,omitempty" binding:"omitempty,min=1,max=64"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// RunResponse is the immediate response for POST /api/v1/runs.
type RunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Missing   []string        `json:"missing,omitempty"`
	Records   []CharityRecord `json:"records,omitempty"`
	Error     *ErrorDetail    `json:"error,omitempty"` // set when the run could not start
}

// RunJob tracks an in-progress or finished run.
type RunJob struct {
	ID            string
	Status        string
	ABNs          []string
	Workers       int
	Completed     int
	Missing       []string
	Records       []CharityRecord
	Error         *ErrorDetail
	CreatedAt     int64 // unix timestamp
	WebhookURL    string
	WebhookSecret string
}
