package models

import (
	"time"

	"gorm.io/gorm"
)

// Assignment statuses.
const (
	AssignmentStatusOpen      = "open"
	AssignmentStatusClosed    = "closed"
	AssignmentStatusSubmitted = "submitted"
	AssignmentStatusGraded    = "graded"
)

// Submission methods.
const (
	SubmissionMethodFile = "file"
	SubmissionMethodLink = "link"
)

// Assignment represents a unit of work scoped to one class.
type Assignment struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ClassID          uint           `gorm:"not null;index" json:"class_id"`
	CreatedBy        uint           `gorm:"not null" json:"created_by"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Deadline         time.Time      `gorm:"not null" json:"deadline"`
	Status           string         `gorm:"size:32;not null;default:open" json:"status"`
	SubmissionMethod string         `gorm:"size:16;not null;default:file" json:"submission_method"`
	SubmissionLink   string         `gorm:"size:512" json:"submission_link"`
	LecturerName     string         `gorm:"size:255" json:"lecturer_name"`
	LecturerEmail    string         `gorm:"size:255" json:"lecturer_email"`
	AutoSend         bool           `gorm:"not null;default:false" json:"auto_send"`
	Delivered        bool           `gorm:"not null;default:false" json:"delivered"`
	DeliveredAt      *time.Time     `json:"delivered_at"`
	StorageFolderID  string         `gorm:"size:255" json:"storage_folder_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	Submissions      []Submission   `json:"-"`
}

// IsPastDeadline reports whether the assignment deadline has already passed.
func (a Assignment) IsPastDeadline(reference time.Time) bool {
	return reference.After(a.Deadline)
}

// IsClosed reports whether the assignment no longer accepts content updates.
func (a Assignment) IsClosed() bool {
	return a.Status == AssignmentStatusClosed
}
