package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one student's writing session on an assignment.
type Session struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID string     `gorm:"not null;size:36;index:idx_student_sessions_assignment_email,priority:1" json:"assignmentId"`
	StudentName  string     `gorm:"not null" json:"studentName"`
	StudentEmail string     `gorm:"not null;index:idx_student_sessions_assignment_email,priority:2" json:"studentEmail"`
	IsVerified   bool       `gorm:"not null;default:false" json:"isVerified"`
	StartedAt    time.Time  `gorm:"not null" json:"startedAt"`
	LastSavedAt  *time.Time `json:"lastSavedAt"`
	Assignment   Assignment `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Session) TableName() string {
	return "student_sessions"
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}
