// Package server provides the HTTP API for the media tools.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/mediatools-api/internal/job"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/tools"
)

// CreateJobForm is the validated non-file part of a job submission.
type CreateJobForm struct {
	// Tool comes from the URL path.
	Tool string `validate:"required,oneof=video-split audio-split video-convert audio-extract audio-convert"`
	// Format is the output format; empty selects the tool default.
	Format string `validate:"omitempty,alphanum,max=8"`
	// Quality is the quality preset; empty selects the format default.
	Quality string `validate:"omitempty,alphanum,max=8"`
	// Segments are the time ranges of a split.
	Segments []SegmentRequest `validate:"omitempty,max=100,dive"`
}

// SegmentRequest is one segment in the "segments" form field.
type SegmentRequest struct {
	Start string `json:"start" validate:"required,max=16"`
	End   string `json:"end" validate:"required,max=16"`
	Name  string `json:"name,omitempty" validate:"omitempty,max=64,excludesall=/\\"`
}

// CreateJobResponse is the HTTP response after submitting a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Status    string          `json:"status"`
	Format    string          `json:"format,omitempty"`
	Quality   string          `json:"quality,omitempty"`
	InputName string          `json:"input_name"`
	InputSize int64           `json:"input_size"`
	Segments  []tools.Segment `json:"segments,omitempty"`
	Progress  string          `json:"progress,omitempty"`
	// Error and ErrorKind are set only for FAILED jobs.
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Results     []result.Handle `json:"results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ToolResponse describes one tool with its defaults resolved.
type ToolResponse struct {
	tools.Definition
	// DefaultQualities maps each format with a ladder to its default preset.
	DefaultQualities map[string]string `json:"default_qualities,omitempty"`
}

// ToolListResponse is the HTTP response for listing tools.
type ToolListResponse struct {
	Tools []ToolResponse `json:"tools"`
}

// EngineResponse is the HTTP response for the engine status endpoint.
type EngineResponse struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
	Tier  string `json:"tier"`
	Busy  bool   `json:"busy"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Tool:      string(j.Tool),
		Status:    string(j.Status),
		Format:    j.Format,
		Quality:   j.Quality,
		InputName: j.InputName,
		InputSize: j.InputSize,
		Segments:  j.Segments,
		Progress:  j.Progress,
		Results:   j.Results,
		CreatedAt: j.CreatedAt,
	}
	if j.Status == job.StatusFailed {
		resp.Error = j.Error
		resp.ErrorKind = string(j.ErrorKind)
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		resp.StartedAt = &t
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

func newToolResponse(def tools.Definition) ToolResponse {
	resp := ToolResponse{Definition: def}
	for format := range def.Qualities {
		if resp.DefaultQualities == nil {
			resp.DefaultQualities = make(map[string]string)
		}
		resp.DefaultQualities[format] = def.DefaultQuality(format)
	}
	return resp
}
