package models

import "time"

// Class membership roles.
const (
	RoleStudent  = "student"
	RoleClassRep = "class_rep"
	RoleAdmin    = "admin"
)

// User represents an account that can act inside one or more classes.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role           string    `gorm:"size:32;not null;default:student" json:"role"`
	OrganizationID uint      `gorm:"index" json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClassMember links a user to a class with a class-scoped role.
type ClassMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"not null;uniqueIndex:idx_class_members_class_user" json:"class_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_class_members_class_user" json:"user_id"`
	Role      string    `gorm:"size:32;not null;default:student" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
