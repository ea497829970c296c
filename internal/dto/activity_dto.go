package dto

import (
	"time"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// ActivityResponse serializes one audit entry.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ClassID    uint                   `json:"class_id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewActivityResponse converts an ActivityLog model into a DTO.
func NewActivityResponse(model models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:         model.ID,
		ClassID:    model.ClassID,
		ActorID:    model.ActorID,
		ActorRole:  model.ActorRole,
		Action:     model.Action,
		EntityType: model.EntityType,
		EntityID:   model.EntityID,
		Metadata:   model.Metadata,
		CreatedAt:  model.CreatedAt,
	}
}
