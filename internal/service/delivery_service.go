package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/observability"
	"github.com/noah-isme/classdesk-api/internal/repository"
	"github.com/noah-isme/classdesk-api/pkg/sendgrid"
)

// ErrMissingLecturerEmail indicates an auto-send assignment has no recipient.
var ErrMissingLecturerEmail = errors.New("assignment has no lecturer email")

// Archiver packages an assignment's submissions into a zip.
type Archiver interface {
	BuildArchive(ctx context.Context, assignmentID uint, namesByStudent map[uint]string) ([]byte, error)
}

// DeliveryService runs the scheduled batch that emails submission packages to
// lecturers once an auto-send assignment passes its deadline.
type DeliveryService interface {
	ProcessPendingDeliveries(ctx context.Context) (dto.DeliveryRunResponse, error)
}

type deliveryService struct {
	assignments        repository.AssignmentRepository
	submissions        repository.SubmissionRepository
	membership         repository.MembershipRepository
	users              repository.UserRepository
	archiver           Archiver
	mailer             Mailer
	lock               DeliveryLock
	events             EventPublisher
	activity           ActivityRecorder
	logger             zerolog.Logger
	tracer             trace.Tracer
	publicBaseURL      string
	maxAttachmentBytes int64
	now                func() time.Time
}

// NewDeliveryService constructs the delivery batch service.
// maxAttachmentMB bounds the zip size that is emailed inline; larger archives
// fall back to a download link rooted at publicBaseURL.
func NewDeliveryService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	membership repository.MembershipRepository,
	users repository.UserRepository,
	archiver Archiver,
	mailer Mailer,
	lock DeliveryLock,
	events EventPublisher,
	activity ActivityRecorder,
	publicBaseURL string,
	maxAttachmentMB int,
	logger zerolog.Logger,
) DeliveryService {
	if maxAttachmentMB <= 0 {
		maxAttachmentMB = 20
	}
	return &deliveryService{
		assignments:        assignments,
		submissions:        submissions,
		membership:         membership,
		users:              users,
		archiver:           archiver,
		mailer:             mailer,
		lock:               lock,
		events:             events,
		activity:           activity,
		logger:             logger.With().Str("component", "delivery_service").Logger(),
		tracer:             otel.Tracer("github.com/noah-isme/classdesk-api/internal/service/delivery"),
		publicBaseURL:      publicBaseURL,
		maxAttachmentBytes: int64(maxAttachmentMB) * 1024 * 1024,
		now:                time.Now,
	}
}

// ProcessPendingDeliveries closes expired assignments, then packages and
// emails every auto-send assignment past its deadline that has not been
// delivered yet. A failure on one assignment never blocks the others.
func (s *deliveryService) ProcessPendingDeliveries(ctx context.Context) (dto.DeliveryRunResponse, error) {
	started := s.now()
	response := dto.DeliveryRunResponse{StartedAt: started}

	spanCtx, span := s.tracer.Start(ctx, "deliveries.run")
	defer span.End()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(spanCtx)
		if err != nil {
			span.RecordError(err)
			return response, fmt.Errorf("failed to acquire delivery lock: %w", err)
		}
		if !acquired {
			s.logger.Info().Msg("delivery batch already running elsewhere, skipping")
			observability.Deliveries().WithLabelValues("skipped").Inc()
			response.Skipped = true
			response.FinishedAt = s.now()
			return response, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(spanCtx)); err != nil {
				s.logger.Warn().Err(err).Msg("failed to release delivery lock")
			}
		}()
	}

	closed, err := s.assignments.CloseExpired(spanCtx, started)
	if err != nil {
		span.RecordError(err)
		return response, fmt.Errorf("failed to close expired assignments: %w", err)
	}
	response.ClosedAssignments = closed

	pending, err := s.assignments.ListPendingDelivery(spanCtx, started)
	if err != nil {
		span.RecordError(err)
		return response, fmt.Errorf("failed to list pending deliveries: %w", err)
	}

	for _, assignment := range pending {
		response.Processed++
		if err := s.deliverAssignment(spanCtx, assignment); err != nil {
			response.Failed++
			observability.Deliveries().WithLabelValues("failed").Inc()
			s.logger.Error().Err(err).
				Uint("assignment_id", assignment.ID).
				Str("title", assignment.Title).
				Msg("assignment delivery failed")
			continue
		}
		response.Delivered++
		observability.Deliveries().WithLabelValues("delivered").Inc()
	}

	response.FinishedAt = s.now()
	observability.DeliveryBatchDuration().Observe(response.FinishedAt.Sub(started).Seconds())
	span.SetAttributes(
		attribute.Int("delivery.processed", response.Processed),
		attribute.Int("delivery.delivered", response.Delivered),
		attribute.Int("delivery.failed", response.Failed),
	)

	s.logger.Info().
		Int("processed", response.Processed).
		Int("delivered", response.Delivered).
		Int("failed", response.Failed).
		Int64("closed", closed).
		Msg("delivery batch finished")

	return response, nil
}

func (s *deliveryService) deliverAssignment(ctx context.Context, assignment models.Assignment) error {
	spanCtx, span := s.tracer.Start(ctx, "deliveries.deliver",
		trace.WithAttributes(attribute.Int64("assignment.id", int64(assignment.ID))))
	defer span.End()

	if assignment.LecturerEmail == "" {
		return ErrMissingLecturerEmail
	}

	submissions, err := s.submissions.ListByAssignment(spanCtx, assignment.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	msg := sendgrid.Message{
		ToName:  assignment.LecturerName,
		ToEmail: assignment.LecturerEmail,
		Subject: fmt.Sprintf("Submissions for %q", assignment.Title),
	}

	if rep, err := s.membership.FindClassRep(spanCtx, assignment.ClassID); err == nil {
		msg.ReplyToName = rep.Name
		msg.ReplyToEmail = rep.Email
	} else {
		s.logger.Warn().Err(err).Uint("class_id", assignment.ClassID).Msg("no class rep found for reply-to")
	}

	// The archive is built even for zero submissions so the lecturer always
	// receives the package.
	if err := s.attachArchive(spanCtx, assignment, submissions, &msg); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.mailer.Send(spanCtx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send delivery email: %w", err)
	}

	if err := s.assignments.MarkDelivered(spanCtx, assignment.ID, s.now()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark assignment delivered: %w", err)
	}

	if s.events != nil {
		s.events.Publish(spanCtx, "assignment.delivered", map[string]interface{}{
			"assignment_id": assignment.ID,
			"class_id":      assignment.ClassID,
			"submissions":   len(submissions),
		})
	}

	if s.activity != nil {
		id := assignment.ID
		_, _ = s.activity.Record(spanCtx, ActivityEntry{
			ClassID:    assignment.ClassID,
			Action:     "assignment.delivered",
			EntityType: "assignment",
			EntityID:   &id,
			Metadata:   map[string]interface{}{"submissions": len(submissions)},
		})
	}

	return nil
}

// attachArchive builds the zip and either attaches it inline or, when it
// exceeds the configured attachment limit, points the lecturer at the
// download endpoint instead.
func (s *deliveryService) attachArchive(ctx context.Context, assignment models.Assignment, submissions []models.Submission, msg *sendgrid.Message) error {
	ids := make([]uint, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.StudentID)
	}

	names, err := s.users.NamesByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to resolve student names: %w", err)
	}

	archive, err := s.archiver.BuildArchive(ctx, assignment.ID, names)
	if err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}
	observability.ArchiveBytes().Observe(float64(len(archive)))

	summary := fmt.Sprintf(
		"%d submission(s) were collected for %q (deadline %s).",
		len(submissions), assignment.Title, assignment.Deadline.Format(time.RFC1123),
	)
	if len(submissions) == 0 {
		summary = fmt.Sprintf(
			"No submissions were received for %q before the deadline (%s).",
			assignment.Title, assignment.Deadline.Format(time.RFC1123),
		)
	}

	if int64(len(archive)) <= s.maxAttachmentBytes {
		msg.Text = summary + " The archive is attached."
		msg.Attachments = append(msg.Attachments, sendgrid.Attachment{
			Filename:    fmt.Sprintf("assignment-%d-submissions.zip", assignment.ID),
			ContentType: "application/zip",
			Content:     archive,
		})
		return nil
	}

	link := fmt.Sprintf("%s/api/v1/assignments/%d/submissions/archive", s.publicBaseURL, assignment.ID)
	msg.Text = fmt.Sprintf("%s The archive is too large to attach; download it here: %s", summary, link)
	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("archive_bytes", len(archive)).
		Msg("archive exceeds attachment limit, falling back to link")

	return nil
}
