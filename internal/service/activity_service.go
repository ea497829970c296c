package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/repository"
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	ClassID    uint
	ActorID    uint
	ActorRole  string
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService exposes methods to persist and query the audit trail.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, filter repository.ActivityLogFilter) ([]dto.ActivityResponse, int64, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the audit trail service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("entity type is required")
	}

	model := models.ActivityLog{
		ClassID:    entry.ClassID,
		ActorID:    entry.ActorID,
		ActorRole:  normalizeActorRole(entry.ActorRole),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:   entry.EntityID,
		Metadata:   sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist activity log")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, filter repository.ActivityLogFilter) ([]dto.ActivityResponse, int64, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewActivityResponse(entry))
	}

	return responses, total, nil
}

// sanitizeMetadata masks values that look like credentials or addresses.
func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func normalizeActorRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
