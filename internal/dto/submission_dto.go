package dto

import (
	"time"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// SubmissionCreateRequest describes the payload for submitting an assignment.
// For link-method assignments LinkURL carries the student's artifact URL and
// no file upload is expected.
type SubmissionCreateRequest struct {
	AssignmentID uint   `form:"-" validate:"required,gt=0"`
	LinkURL      string `form:"link_url" validate:"omitempty,url"`
}

// ResubmissionRequest carries the student's reason for requesting a redo.
type ResubmissionRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// ResubmissionRejectRequest optionally explains a rejection.
type ResubmissionRejectRequest struct {
	Reason string `json:"reason" validate:"omitempty,min=3"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           uint      `json:"id"`
	AssignmentID uint      `json:"assignment_id"`
	StudentID    uint      `json:"student_id"`
	FileName     string    `json:"file_name,omitempty"`
	FileURL      string    `json:"file_url,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Grade        *float64  `json:"grade,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`

	ResubmissionRequested   bool       `json:"resubmission_requested"`
	ResubmissionRequestedAt *time.Time `json:"resubmission_requested_at,omitempty"`
	ResubmissionReason      string     `json:"resubmission_reason,omitempty"`
	ResubmissionApproved    bool       `json:"resubmission_approved"`
	ResubmissionApprovedBy  *uint      `json:"resubmission_approved_by,omitempty"`
	ResubmissionApprovedAt  *time.Time `json:"resubmission_approved_at,omitempty"`
	ResubmissionRejected    bool       `json:"resubmission_rejected"`
	RejectionReason         string     `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:                      model.ID,
		AssignmentID:            model.AssignmentID,
		StudentID:               model.StudentID,
		FileName:                model.FileName,
		FileURL:                 model.FileURL,
		FileSize:                model.FileSize,
		MimeType:                model.MimeType,
		SubmittedAt:             model.SubmittedAt,
		Grade:                   model.Grade,
		Feedback:                model.Feedback,
		ResubmissionRequested:   model.ResubmissionRequested,
		ResubmissionRequestedAt: model.ResubmissionRequestedAt,
		ResubmissionReason:      model.ResubmissionReason,
		ResubmissionApproved:    model.ResubmissionApproved,
		ResubmissionApprovedBy:  model.ResubmissionApprovedBy,
		ResubmissionApprovedAt:  model.ResubmissionApprovedAt,
		ResubmissionRejected:    model.ResubmissionRejected,
		RejectionReason:         model.RejectionReason,
		CreatedAt:               model.CreatedAt,
		UpdatedAt:               model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
