package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classdesk-api/internal/models"
)

var errSendGridDown = errors.New("sendgrid down")

type deliveryFixture struct {
	*submissionFixture
	svc    DeliveryService
	mailer *fakeMailer
}

func newDeliveryFixture(t *testing.T, maxAttachmentMB int, lock DeliveryLock) *deliveryFixture {
	t.Helper()

	base := newSubmissionFixture(t)
	mailer := &fakeMailer{}
	svc := NewDeliveryService(
		base.assignments,
		base.submissions,
		base.membership,
		base.users,
		base.svc,
		mailer,
		lock,
		base.events,
		base.recorder,
		"https://classdesk.example.com",
		maxAttachmentMB,
		zerolog.Nop(),
	)
	return &deliveryFixture{submissionFixture: base, svc: svc, mailer: mailer}
}

func (f *deliveryFixture) seedDueAssignment(t *testing.T, mutate func(*models.Assignment)) models.Assignment {
	t.Helper()
	return f.seedAssignment(t, func(a *models.Assignment) {
		a.Deadline = time.Now().Add(-time.Hour)
		a.AutoSend = true
		a.LecturerName = "Dr. Sari"
		a.LecturerEmail = "sari@example.edu"
		if mutate != nil {
			mutate(a)
		}
	})
}

func TestDeliveryAttachesArchiveAndMarksDelivered(t *testing.T) {
	f := newDeliveryFixture(t, 20, nil)
	assignment := f.seedDueAssignment(t, nil)
	seedStoredSubmission(t, f.submissionFixture, assignment.ID, 5, "report.pdf", "ayu's report")

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Delivered)
	require.Zero(t, result.Failed)
	require.Equal(t, int64(1), result.ClosedAssignments)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	require.Equal(t, "sari@example.edu", msg.ToEmail)
	require.Equal(t, "Budi Santoso", msg.ReplyToName, "class rep is the reply-to contact")
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "application/zip", msg.Attachments[0].ContentType)

	delivered, err := f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.True(t, delivered.Delivered)
	require.Contains(t, f.events.subjects, "assignment.delivered")
}

func TestDeliveryFallsBackToLinkForLargeArchive(t *testing.T) {
	f := newDeliveryFixture(t, 1, nil)
	assignment := f.seedDueAssignment(t, nil)

	// Random bytes stay above the 1 MB attachment limit even after deflate.
	big := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(1)).Read(big)
	seedStoredSubmission(t, f.submissionFixture, assignment.ID, 5, "dataset.bin", string(big))

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	require.Empty(t, msg.Attachments)
	require.Contains(t, msg.Text, "https://classdesk.example.com/api/v1/assignments/")
}

func TestDeliveryWithoutSubmissionsAttachesEmptyArchive(t *testing.T) {
	f := newDeliveryFixture(t, 20, nil)
	f.seedDueAssignment(t, nil)

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	require.Contains(t, msg.Text, "No submissions were received")

	// The package still ships, as an empty zip.
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "application/zip", msg.Attachments[0].ContentType)
	require.Empty(t, readZip(t, msg.Attachments[0].Content))
}

func TestDeliveryIsolatesPerAssignmentFailures(t *testing.T) {
	f := newDeliveryFixture(t, 20, nil)
	f.seedDueAssignment(t, func(a *models.Assignment) { a.LecturerEmail = "" })
	healthy := f.seedDueAssignment(t, nil)

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, 1, result.Failed)

	delivered, err := f.assignments.GetByID(context.Background(), healthy.ID)
	require.NoError(t, err)
	require.True(t, delivered.Delivered)
}

func TestDeliveryMailFailureLeavesAssignmentPending(t *testing.T) {
	f := newDeliveryFixture(t, 20, nil)
	assignment := f.seedDueAssignment(t, nil)
	f.mailer.failErr = errSendGridDown

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)

	pending, err := f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.False(t, pending.Delivered, "a failed email must stay pending for the next batch")
}

func TestDeliverySkipsWhenLockHeld(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	lock := NewRedisDeliveryLock(client, "classdesk:delivery:lock", time.Minute)

	held, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	f := newDeliveryFixture(t, 20, lock)
	f.seedDueAssignment(t, nil)

	result, err := f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Zero(t, result.Processed)
	require.Empty(t, f.mailer.sent)

	// Once released, the batch runs.
	require.NoError(t, lock.Release(context.Background()))
	result, err = f.svc.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Equal(t, 1, result.Delivered)

	// The lock does not outlive the run.
	require.False(t, server.Exists("classdesk:delivery:lock"))
}
