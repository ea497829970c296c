package models

import "time"

// Submission represents one student's delivered artifact for one assignment.
// The composite unique index keeps at most one row per (assignment, student)
// pair even under concurrent first submissions.
type Submission struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AssignmentID uint   `gorm:"not null;uniqueIndex:idx_submissions_assignment_student" json:"assignment_id"`
	StudentID    uint   `gorm:"not null;uniqueIndex:idx_submissions_assignment_student" json:"student_id"`
	FileName     string `gorm:"size:255" json:"file_name"`
	FileURL      string `gorm:"size:512" json:"file_url"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `gorm:"size:128" json:"mime_type"`
	// StorageFileID references the blob in external storage; empty for
	// link-method submissions that never uploaded a file.
	StorageFileID   string `gorm:"size:255" json:"storage_file_id"`
	StorageFolderID string `gorm:"size:255" json:"storage_folder_id"`

	SubmittedAt time.Time `gorm:"not null" json:"submitted_at"`
	Grade       *float64  `json:"grade"`
	Feedback    string    `gorm:"type:text" json:"feedback"`

	ResubmissionRequested   bool       `gorm:"not null;default:false" json:"resubmission_requested"`
	ResubmissionRequestedAt *time.Time `json:"resubmission_requested_at"`
	ResubmissionReason      string     `gorm:"type:text" json:"resubmission_reason"`
	ResubmissionApproved    bool       `gorm:"not null;default:false" json:"resubmission_approved"`
	ResubmissionApprovedBy  *uint      `json:"resubmission_approved_by"`
	ResubmissionApprovedAt  *time.Time `json:"resubmission_approved_at"`
	ResubmissionRejected    bool       `gorm:"not null;default:false" json:"resubmission_rejected"`
	RejectionReason         string     `gorm:"type:text" json:"rejection_reason"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Assignment Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student    User       `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// HasStoredFile reports whether a blob backs this submission.
func (s Submission) HasStoredFile() bool {
	return s.StorageFileID != ""
}

// ResubmissionPending reports whether a request is awaiting a decision.
func (s Submission) ResubmissionPending() bool {
	return s.ResubmissionRequested && !s.ResubmissionApproved
}
