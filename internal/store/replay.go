package store

import (
	"context"
	"errors"
	"log"
	"strconv"

	"gorm.io/gorm"

	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/idle"
	"github.com/wooogler/swag/internal/model"
	"github.com/wooogler/swag/internal/replay"
)

var ErrAssignmentNotFound = errors.New("assignment not found")

func (s *Store) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	var a model.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAssignmentByShareToken(ctx context.Context, token string) (*model.Assignment, error) {
	var a model.Assignment
	if err := s.db.WithContext(ctx).First(&a, "share_token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ReplayData is everything needed to replay a session. It is the JSON body
// of the replay endpoint and the value kept in the replay cache.
type ReplayData struct {
	Session       model.Session            `json:"session"`
	Events        []event.Record           `json:"events"`
	Conversations []model.ChatConversation `json:"conversations"`
	ChatMessages  []replay.Message         `json:"chatMessages"`
	StartTime     int64                    `json:"startTime"`
	EndTime       int64                    `json:"endTime"`
	IdlePeriods   []idle.Period            `json:"idlePeriods"`
	Markers       []replay.Marker          `json:"markers"`
}

// LoadReplay reads a session's log and chat history and computes its replay
// range and idle periods.
func (s *Store) LoadReplay(ctx context.Context, sessionID string, idleCfg idle.Config) (*ReplayData, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	convs, err := s.ListConversations(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := &ReplayData{
		Session:       *session,
		Events:        make([]event.Record, 0, len(rows)),
		Conversations: convs,
		ChatMessages:  make([]replay.Message, 0, len(msgs)),
	}
	for _, r := range rows {
		data.Events = append(data.Events, r.Record())
	}
	for _, m := range msgs {
		data.ChatMessages = append(data.ChatMessages, replay.Message{
			ID:             strconv.FormatInt(m.ID, 10),
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			Timestamp:      m.Timestamp.UnixMilli(),
			SequenceNumber: m.SequenceNumber,
		})
	}

	tl := data.Timeline()
	data.StartTime, data.EndTime = tl.Bounds(session.StartedAt.UnixMilli())
	data.IdlePeriods = idle.NewMapper(idleCfg, tl.Timestamps()).Periods()
	data.Markers = tl.Markers()
	return data, nil
}

// Timeline decodes the events into a replay timeline. Rows that do not
// decode are skipped.
func (d *ReplayData) Timeline() *replay.Timeline {
	events := make([]event.Event, 0, len(d.Events))
	for _, r := range d.Events {
		e, err := event.Decode(r)
		if err != nil {
			log.Printf("[Replay] session %s: skipping event #%d: %v", d.Session.ID, r.SequenceNumber, err)
			continue
		}
		events = append(events, e)
	}
	return replay.NewTimeline(events, d.ChatMessages)
}
