package api

import "meetsync/internal/availability"

const (
	ErrInvalidQuery       = "invalid_query"
	ErrNotFound           = "not_found"
	ErrAlreadyExists      = "already_exists"
	ErrStoreUnavailable   = "store_unavailable"
	ErrQueueUnavailable   = "queue_unavailable"
	ErrValidationFailed   = "validation_failed"
	ErrInternal           = "internal_error"
	StatusEnqueued        = "enqueued"
	StatusHealthy         = "healthy"
	StatusUnhealthy       = "unhealthy"
	DefaultServiceName    = "meetsync-api"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	CaseID string            `json:"case_id"`
	Fields map[string]string `json:"fields,omitempty"`
}

type TaskResponse struct {
	CaseID string `json:"case_id"`
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Queue  string `json:"queue"`
}

type CommonResponse struct {
	UserID1 string                `json:"userId1"`
	UserID2 string                `json:"userId2"`
	Common  availability.Schedule `json:"common"`
}

type DependencyHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

type HealthResponse struct {
	Service      string                      `json:"service"`
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
}
