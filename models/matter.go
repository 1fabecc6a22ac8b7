package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Matter is the tenancy unit: one legal case. Every row in every other
// collection carries the matter ID and every query filters by it.
type Matter struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Members   []MatterMember     `bson:"members" json:"members"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	DeletedAt *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// MatterMember associates a user with a role inside a matter.
type MatterMember struct {
	UserID string `bson:"user_id" json:"user_id"`
	Role   string `bson:"role" json:"role"`
}

// Matter member roles
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// HasMember reports whether userID belongs to the matter.
func (m *Matter) HasMember(userID string) bool {
	for _, mem := range m.Members {
		if mem.UserID == userID {
			return true
		}
	}
	return false
}

// RoleOf returns the member's role, or "" if not a member.
func (m *Matter) RoleOf(userID string) string {
	for _, mem := range m.Members {
		if mem.UserID == userID {
			return mem.Role
		}
	}
	return ""
}
