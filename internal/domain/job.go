package domain

import "time"

// JobStatus enumerates colorization job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// ColorizeJob tracks one colorization request from creation through the
// external prediction to a terminal outcome. Jobs are never deleted.
type ColorizeJob struct {
	ID               string    `json:"job_id"`
	Status           JobStatus `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	InfraredImageURL string    `json:"infrared_image_url"`
	ReferenceIDs     []string  `json:"reference_ids"`
	ResultURL        string    `json:"result_url,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	PredictionID     string    `json:"replicate_prediction_id,omitempty"`
}
