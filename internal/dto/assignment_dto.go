package dto

import (
	"time"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title            string `json:"title" form:"title" validate:"required,min=3"`
	Description      string `json:"description" form:"description" validate:"required,min=10"`
	Deadline         string `json:"deadline" form:"deadline" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	SubmissionMethod string `json:"submission_method" form:"submission_method" validate:"required,oneof=file link"`
	SubmissionLink   string `json:"submission_link" form:"submission_link" validate:"required_if=SubmissionMethod link,omitempty,url"`
	LecturerName     string `json:"lecturer_name" form:"lecturer_name" validate:"omitempty,min=2"`
	LecturerEmail    string `json:"lecturer_email" form:"lecturer_email" validate:"omitempty,email"`
	AutoSend         bool   `json:"auto_send" form:"auto_send"`
}

// AssignmentUpdateRequest describes a partial update of an assignment.
type AssignmentUpdateRequest struct {
	Title            *string `json:"title" validate:"omitempty,min=3"`
	Description      *string `json:"description" validate:"omitempty,min=10"`
	Deadline         *string `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	SubmissionMethod *string `json:"submission_method" validate:"omitempty,oneof=file link"`
	SubmissionLink   *string `json:"submission_link" validate:"omitempty,url"`
	LecturerName     *string `json:"lecturer_name" validate:"omitempty,min=2"`
	LecturerEmail    *string `json:"lecturer_email" validate:"omitempty,email"`
	AutoSend         *bool   `json:"auto_send"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID               uint       `json:"id"`
	ClassID          uint       `json:"class_id"`
	CreatedBy        uint       `json:"created_by"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Deadline         time.Time  `json:"deadline"`
	Status           string     `json:"status"`
	SubmissionMethod string     `json:"submission_method"`
	SubmissionLink   string     `json:"submission_link,omitempty"`
	LecturerName     string     `json:"lecturer_name,omitempty"`
	LecturerEmail    string     `json:"lecturer_email,omitempty"`
	AutoSend         bool       `json:"auto_send"`
	Delivered        bool       `json:"delivered"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:               model.ID,
		ClassID:          model.ClassID,
		CreatedBy:        model.CreatedBy,
		Title:            model.Title,
		Description:      model.Description,
		Deadline:         model.Deadline,
		Status:           model.Status,
		SubmissionMethod: model.SubmissionMethod,
		SubmissionLink:   model.SubmissionLink,
		LecturerName:     model.LecturerName,
		LecturerEmail:    model.LecturerEmail,
		AutoSend:         model.AutoSend,
		Delivered:        model.Delivered,
		DeliveredAt:      model.DeliveredAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
