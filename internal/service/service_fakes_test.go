package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/repository"
	"github.com/noah-isme/classdesk-api/pkg/cloudinary"
	"github.com/noah-isme/classdesk-api/pkg/sendgrid"
)

type memoryAssignmentRepo struct {
	assignments map[uint]models.Assignment
	nextID      uint
}

func newMemoryAssignmentRepo() *memoryAssignmentRepo {
	return &memoryAssignmentRepo{assignments: make(map[uint]models.Assignment), nextID: 1}
}

func (m *memoryAssignmentRepo) GetByID(_ context.Context, id uint) (models.Assignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (m *memoryAssignmentRepo) ListByClass(_ context.Context, classID uint) ([]models.Assignment, error) {
	results := make([]models.Assignment, 0)
	for _, assignment := range m.assignments {
		if assignment.ClassID == classID {
			results = append(results, assignment)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Deadline.Before(results[j].Deadline) })
	return results, nil
}

func (m *memoryAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	assignment.ID = m.nextID
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = time.Now()
	m.assignments[m.nextID] = *assignment
	m.nextID++
	return nil
}

func (m *memoryAssignmentRepo) Update(_ context.Context, assignment *models.Assignment) error {
	if _, ok := m.assignments[assignment.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	assignment.UpdatedAt = time.Now()
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *memoryAssignmentRepo) Delete(_ context.Context, id uint) error {
	if _, ok := m.assignments[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.assignments, id)
	return nil
}

func (m *memoryAssignmentRepo) CloseExpired(_ context.Context, now time.Time) (int64, error) {
	var closed int64
	for id, assignment := range m.assignments {
		if assignment.Status == models.AssignmentStatusOpen && !assignment.Deadline.After(now) {
			assignment.Status = models.AssignmentStatusClosed
			m.assignments[id] = assignment
			closed++
		}
	}
	return closed, nil
}

func (m *memoryAssignmentRepo) ListPendingDelivery(_ context.Context, now time.Time) ([]models.Assignment, error) {
	results := make([]models.Assignment, 0)
	for _, assignment := range m.assignments {
		if assignment.AutoSend && !assignment.Delivered && assignment.Deadline.Before(now) {
			results = append(results, assignment)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Deadline.Before(results[j].Deadline) })
	return results, nil
}

func (m *memoryAssignmentRepo) MarkDelivered(_ context.Context, id uint, at time.Time) error {
	assignment, ok := m.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	assignment.Delivered = true
	assignment.DeliveredAt = &at
	m.assignments[id] = assignment
	return nil
}

func (m *memoryAssignmentRepo) SetStorageFolder(_ context.Context, id uint, folderID string) error {
	assignment, ok := m.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	assignment.StorageFolderID = folderID
	m.assignments[id] = assignment
	return nil
}

type memorySubmissionRepo struct {
	submissions map[uint]models.Submission
	nextID      uint
}

func newMemorySubmissionRepo() *memorySubmissionRepo {
	return &memorySubmissionRepo{submissions: make(map[uint]models.Submission), nextID: 1}
}

func (m *memorySubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	submission, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (m *memorySubmissionRepo) GetByAssignmentAndStudent(_ context.Context, assignmentID, studentID uint) (models.Submission, error) {
	for _, submission := range m.submissions {
		if submission.AssignmentID == assignmentID && submission.StudentID == studentID {
			return submission, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (m *memorySubmissionRepo) ListByAssignment(_ context.Context, assignmentID uint) ([]models.Submission, error) {
	results := make([]models.Submission, 0)
	for _, submission := range m.submissions {
		if submission.AssignmentID == assignmentID {
			results = append(results, submission)
		}
	}
	// Newest first, matching the real repository's submitted_at ordering.
	sort.Slice(results, func(i, j int) bool {
		if results[i].SubmittedAt.Equal(results[j].SubmittedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].SubmittedAt.After(results[j].SubmittedAt)
	})
	return results, nil
}

func (m *memorySubmissionRepo) ListPendingResubmissions(_ context.Context, assignmentID uint) ([]models.Submission, error) {
	results := make([]models.Submission, 0)
	for _, submission := range m.submissions {
		if submission.AssignmentID == assignmentID && submission.ResubmissionRequested && !submission.ResubmissionApproved {
			results = append(results, submission)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *memorySubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	for _, existing := range m.submissions {
		if existing.AssignmentID == submission.AssignmentID && existing.StudentID == submission.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	submission.ID = m.nextID
	submission.CreatedAt = time.Now()
	submission.UpdatedAt = time.Now()
	m.submissions[m.nextID] = *submission
	m.nextID++
	return nil
}

func (m *memorySubmissionRepo) Update(_ context.Context, submission *models.Submission) error {
	if _, ok := m.submissions[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *memorySubmissionRepo) Replace(_ context.Context, oldID uint, submission *models.Submission) error {
	if _, ok := m.submissions[oldID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.submissions, oldID)
	submission.ID = m.nextID
	submission.CreatedAt = time.Now()
	submission.UpdatedAt = time.Now()
	m.submissions[m.nextID] = *submission
	m.nextID++
	return nil
}

func (m *memorySubmissionRepo) MarkResubmissionRequested(_ context.Context, id uint, reason string, at time.Time) error {
	submission, ok := m.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if submission.ResubmissionRequested {
		return repository.ErrStaleSubmissionState
	}
	submission.ResubmissionRequested = true
	submission.ResubmissionRequestedAt = &at
	submission.ResubmissionReason = reason
	submission.ResubmissionRejected = false
	submission.RejectionReason = ""
	m.submissions[id] = submission
	return nil
}

func (m *memorySubmissionRepo) ApproveResubmission(_ context.Context, id uint, approverID uint, at time.Time) error {
	submission, ok := m.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !submission.ResubmissionRequested || submission.ResubmissionApproved {
		return repository.ErrStaleSubmissionState
	}
	submission.ResubmissionApproved = true
	submission.ResubmissionApprovedBy = &approverID
	submission.ResubmissionApprovedAt = &at
	submission.ResubmissionRejected = false
	submission.RejectionReason = ""
	m.submissions[id] = submission
	return nil
}

func (m *memorySubmissionRepo) RejectResubmission(_ context.Context, id uint, reason string) error {
	submission, ok := m.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	submission.ResubmissionRequested = false
	submission.ResubmissionApproved = false
	submission.ResubmissionRejected = true
	submission.RejectionReason = reason
	m.submissions[id] = submission
	return nil
}

type memberKey struct {
	classID uint
	userID  uint
}

type memoryMembershipRepo struct {
	members map[memberKey]string
	users   map[uint]models.User
}

func newMemoryMembershipRepo() *memoryMembershipRepo {
	return &memoryMembershipRepo{members: make(map[memberKey]string), users: make(map[uint]models.User)}
}

func (m *memoryMembershipRepo) add(classID uint, user models.User, role string) {
	m.members[memberKey{classID: classID, userID: user.ID}] = role
	m.users[user.ID] = user
}

func (m *memoryMembershipRepo) IsMember(_ context.Context, userID, classID uint, requiredRole string) (bool, error) {
	role, ok := m.members[memberKey{classID: classID, userID: userID}]
	if !ok {
		return false, nil
	}
	if requiredRole == "" {
		return true, nil
	}
	return role == requiredRole || role == models.RoleAdmin, nil
}

func (m *memoryMembershipRepo) FindClassRep(_ context.Context, classID uint) (models.User, error) {
	for key, role := range m.members {
		if key.classID == classID && role == models.RoleClassRep {
			return m.users[key.userID], nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

type memoryUserRepo struct {
	users map[uint]models.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uint]models.User)}
}

func (m *memoryUserRepo) GetByID(_ context.Context, id uint) (models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) NamesByID(_ context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			names[id] = user.Name
		}
	}
	return names, nil
}

// fakeStorage keeps uploaded blobs in memory, addressable by URL.
type fakeStorage struct {
	files        map[string][]byte
	deleted      []string
	nextFile     int
	failDownload map[string]error
	failDelete   error
	failUpload   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte), failDownload: make(map[string]error)}
}

func (f *fakeStorage) EnsureFolder(_ context.Context, name, parent string) (string, error) {
	return parent + "/" + name, nil
}

func (f *fakeStorage) Upload(_ context.Context, reader io.Reader, name, folder string) (cloudinary.StoredFile, error) {
	if f.failUpload != nil {
		return cloudinary.StoredFile{}, f.failUpload
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return cloudinary.StoredFile{}, err
	}
	f.nextFile++
	id := fmt.Sprintf("%s/%s-%d", folder, name, f.nextFile)
	url := "mem://" + id
	f.files[url] = data
	return cloudinary.StoredFile{ID: id, URL: url, Size: int64(len(data))}, nil
}

func (f *fakeStorage) Download(_ context.Context, fileURL string) (io.ReadCloser, error) {
	if err, ok := f.failDownload[fileURL]; ok {
		return nil, err
	}
	data, ok := f.files[fileURL]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileURL)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, fileID string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	f.deleted = append(f.deleted, fileID)
	delete(f.files, "mem://"+fileID)
	return nil
}

type fakeMailer struct {
	sent    []sendgrid.Message
	failErr error
}

func (f *fakeMailer) Send(_ context.Context, msg sendgrid.Message) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

type recorderStub struct {
	entries []ActivityEntry
}

func (r *recorderStub) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	r.entries = append(r.entries, entry)
	return dto.ActivityResponse{}, nil
}

type eventsStub struct {
	subjects []string
}

func (e *eventsStub) Publish(_ context.Context, subject string, _ map[string]interface{}) {
	e.subjects = append(e.subjects, subject)
}

// makeFileHeader builds a multipart file header the way fiber hands it to
// handlers.
func makeFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	return req.MultipartForm.File["file"][0]
}
