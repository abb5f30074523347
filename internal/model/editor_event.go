package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/wooogler/swag/internal/event"
)

// EditorEvent is one row of a session's append-only event log.
type EditorEvent struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string         `gorm:"not null;size:36;uniqueIndex:idx_editor_events_session_seq,priority:1" json:"sessionId"`
	EventType      string         `gorm:"not null;size:32" json:"eventType"`
	EventData      datatypes.JSON `gorm:"not null" json:"eventData"`
	Timestamp      time.Time      `gorm:"not null" json:"timestamp"`
	SequenceNumber int64          `gorm:"not null;uniqueIndex:idx_editor_events_session_seq,priority:2" json:"sequenceNumber"`
	Session        Session        `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (EditorEvent) TableName() string {
	return "editor_events"
}

func NewEditorEvent(sessionID string, r event.Record) EditorEvent {
	data := datatypes.JSON(r.Data)
	if len(data) == 0 {
		data = datatypes.JSON(`{}`)
	}
	return EditorEvent{
		SessionID:      sessionID,
		EventType:      string(r.Type),
		EventData:      data,
		Timestamp:      time.UnixMilli(r.Timestamp),
		SequenceNumber: r.SequenceNumber,
	}
}

func (e EditorEvent) Record() event.Record {
	return event.Record{
		Type:           event.Kind(e.EventType),
		Timestamp:      e.Timestamp.UnixMilli(),
		SequenceNumber: e.SequenceNumber,
		Data:           json.RawMessage(e.EventData),
	}
}
