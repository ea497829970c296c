package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ClassMember{},
		&models.Assignment{},
		&models.Submission{},
		&models.ActivityLog{},
	))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB, assignmentID, studentID uint) models.Submission {
	t.Helper()
	submission := models.Submission{
		AssignmentID:  assignmentID,
		StudentID:     studentID,
		FileName:      "report.pdf",
		FileURL:       "https://files.example.com/report.pdf",
		StorageFileID: "file-1",
		SubmittedAt:   time.Now(),
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestSubmissionRepositoryRejectsDuplicatePerStudent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)

	first := models.Submission{AssignmentID: 1, StudentID: 7, SubmittedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), &first))

	duplicate := models.Submission{AssignmentID: 1, StudentID: 7, SubmittedAt: time.Now()}
	err := repo.Create(context.Background(), &duplicate)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	other := models.Submission{AssignmentID: 1, StudentID: 8, SubmittedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), &other))
}

func TestSubmissionRepositoryMarkResubmissionRequested(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	submission := seedSubmission(t, db, 1, 7)

	require.NoError(t, repo.MarkResubmissionRequested(context.Background(), submission.ID, "wrong file", time.Now()))

	updated, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, updated.ResubmissionRequested)
	require.Equal(t, "wrong file", updated.ResubmissionReason)
	require.NotNil(t, updated.ResubmissionRequestedAt)

	// A second request while one is open is stale, not a silent overwrite.
	err = repo.MarkResubmissionRequested(context.Background(), submission.ID, "again", time.Now())
	require.ErrorIs(t, err, ErrStaleSubmissionState)

	err = repo.MarkResubmissionRequested(context.Background(), 999, "missing", time.Now())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryApproveResubmissionGuards(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	submission := seedSubmission(t, db, 1, 7)

	err := repo.ApproveResubmission(context.Background(), submission.ID, 2, time.Now())
	require.ErrorIs(t, err, ErrStaleSubmissionState, "approving without an open request must fail")

	require.NoError(t, repo.MarkResubmissionRequested(context.Background(), submission.ID, "redo", time.Now()))
	require.NoError(t, repo.ApproveResubmission(context.Background(), submission.ID, 2, time.Now()))

	approved, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, approved.ResubmissionApproved)
	require.NotNil(t, approved.ResubmissionApprovedBy)
	require.Equal(t, uint(2), *approved.ResubmissionApprovedBy)

	err = repo.ApproveResubmission(context.Background(), submission.ID, 3, time.Now())
	require.ErrorIs(t, err, ErrStaleSubmissionState, "double approval must fail")
}

func TestSubmissionRepositoryRejectResubmissionResets(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	submission := seedSubmission(t, db, 1, 7)

	require.NoError(t, repo.MarkResubmissionRequested(context.Background(), submission.ID, "redo", time.Now()))
	require.NoError(t, repo.RejectResubmission(context.Background(), submission.ID, "file is fine"))

	rejected, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.False(t, rejected.ResubmissionRequested)
	require.False(t, rejected.ResubmissionApproved)
	require.True(t, rejected.ResubmissionRejected)
	require.Equal(t, "file is fine", rejected.RejectionReason)

	// The student can request again after a rejection.
	require.NoError(t, repo.MarkResubmissionRequested(context.Background(), submission.ID, "second try", time.Now()))
	again, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, again.ResubmissionRequested)
	require.False(t, again.ResubmissionRejected)
}

func TestSubmissionRepositoryReplaceSwapsRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	old := seedSubmission(t, db, 1, 7)

	replacement := models.Submission{
		AssignmentID:  1,
		StudentID:     7,
		FileName:      "report-v2.pdf",
		FileURL:       "https://files.example.com/report-v2.pdf",
		StorageFileID: "file-2",
		SubmittedAt:   time.Now(),
	}
	require.NoError(t, repo.Replace(context.Background(), old.ID, &replacement))

	_, err := repo.GetByID(context.Background(), old.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	current, err := repo.GetByAssignmentAndStudent(context.Background(), 1, 7)
	require.NoError(t, err)
	require.Equal(t, "report-v2.pdf", current.FileName)
	require.False(t, current.ResubmissionRequested, "replacement must consume the approval")
	require.False(t, current.ResubmissionApproved)

	err = repo.Replace(context.Background(), 999, &models.Submission{AssignmentID: 2, StudentID: 7, SubmittedAt: time.Now()})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryListPendingResubmissions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)

	pending := seedSubmission(t, db, 1, 7)
	quiet := models.Submission{AssignmentID: 1, StudentID: 8, SubmittedAt: time.Now()}
	require.NoError(t, db.Create(&quiet).Error)

	require.NoError(t, repo.MarkResubmissionRequested(context.Background(), pending.ID, "redo", time.Now()))

	list, err := repo.ListPendingResubmissions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, pending.ID, list[0].ID)
}
