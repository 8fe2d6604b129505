package api

import (
	"encoding/json"
	"time"
)

// Response is the standard API envelope
type Response struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Errors  map[string]string      `json:"errors,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateJobRequest is the body of POST /api/jobs
type CreateJobRequest struct {
	Name                 string          `json:"name"`
	SourceProfileID      string          `json:"source_profile_id"`
	DestinationProfileID string          `json:"destination_profile_id"`
	Config               json.RawMessage `json:"config"`
	RepeatPeriod         *string         `json:"repeat_period"`
	StartTime            *int64          `json:"start_time"` // unix milliseconds
	IncludePreviousData  *bool           `json:"include_previous_data"`
}
