package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Instructor struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"not null;uniqueIndex" json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Instructor) TableName() string {
	return "instructors"
}

func (i *Instructor) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

type Assignment struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	Instructions string    `gorm:"type:text;not null" json:"instructions"`
	Deadline     time.Time `gorm:"not null" json:"deadline"`
	ShareToken   string    `gorm:"not null;uniqueIndex;size:64" json:"shareToken"`
	InstructorID *string   `gorm:"size:36;index" json:"instructorId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Assignment) TableName() string {
	return "assignments"
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ShareToken == "" {
		a.ShareToken = uuid.NewString()
	}
	return nil
}
