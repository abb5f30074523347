// Package store persists writing sessions, their event logs and chat history.
//
// The event log is append-only: rows are inserted and never updated. A batch
// that is retried after a lost response is idempotent because rows are keyed
// by (session_id, sequence_number) and conflicting inserts are skipped.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/model"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidTitle         = errors.New("title must be 1 to 200 characters")
	ErrInvalidRole          = errors.New("role must be user or assistant")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

// AppendResult describes one appended batch.
type AppendResult struct {
	// Saved is the batch size, counting rows an earlier attempt already stored.
	Saved    int
	Inserted int
}

// Duplicates is the number of rows skipped because they were already stored.
func (r AppendResult) Duplicates() int { return r.Saved - r.Inserted }

// AppendEvents inserts a batch for a session in one transaction and stamps
// the session's last save time.
func (s *Store) AppendEvents(ctx context.Context, sessionID string, records []event.Record) (AppendResult, error) {
	if len(records) == 0 {
		return AppendResult{}, nil
	}

	rows := make([]model.EditorEvent, 0, len(records))
	for _, r := range records {
		if !r.Type.Valid() {
			return AppendResult{}, fmt.Errorf("%w: %q", event.ErrUnknownKind, r.Type)
		}
		rows = append(rows, model.NewEditorEvent(sessionID, r))
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.Select("id").First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		result := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "sequence_number"}},
				DoNothing: true,
			}).
			Create(&rows)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected

		return tx.Model(&model.Session{}).
			Where("id = ?", sessionID).
			Update("last_saved_at", time.Now()).Error
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[Store] session %s: append %d events failed: %v", sessionID, len(records), err)
		}
		return AppendResult{}, err
	}

	res := AppendResult{Saved: len(records), Inserted: int(inserted)}
	if dup := res.Duplicates(); dup > 0 {
		log.Printf("[Store] session %s: skipped %d already stored events", sessionID, dup)
	}
	return res, nil
}

// ListEvents returns a session's log in sequence order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]model.EditorEvent, error) {
	var events []model.EditorEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence_number ASC").
		Find(&events).Error
	return events, err
}

func (s *Store) ListSubmissions(ctx context.Context, sessionID string) ([]model.EditorEvent, error) {
	var events []model.EditorEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND event_type = ?", sessionID, string(event.KindSubmission)).
		Order("sequence_number ASC").
		Find(&events).Error
	return events, err
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// StartSession finds the student's session on an assignment or creates it.
func (s *Store) StartSession(ctx context.Context, assignmentID, studentName, studentEmail string) (*model.Session, bool, error) {
	email := strings.ToLower(strings.TrimSpace(studentEmail))
	var session model.Session
	result := s.db.WithContext(ctx).
		Where("assignment_id = ? AND student_email = ?", assignmentID, email).
		Order("started_at DESC").
		First(&session)
	if result.Error == nil {
		return &session, false, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, false, result.Error
	}

	session = model.Session{
		AssignmentID: assignmentID,
		StudentName:  strings.TrimSpace(studentName),
		StudentEmail: email,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&session).Error; err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

// DeleteSession removes a session with its events, conversations and messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Limit(1).Find(&model.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}

		convIDs := tx.Model(&model.ChatConversation{}).Select("id").Where("session_id = ?", id)
		if err := tx.Where("conversation_id IN (?)", convIDs).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.ChatConversation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.EditorEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Session{}).Error
	})
}

// SessionIDs lists every session id, oldest first.
func (s *Store) SessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Session{}).Order("started_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// InstructorOwnsSession reports whether the session belongs to one of the
// instructor's assignments.
func (s *Store) InstructorOwnsSession(ctx context.Context, instructorID, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Joins("JOIN assignments ON assignments.id = student_sessions.assignment_id").
		Where("student_sessions.id = ? AND assignments.instructor_id = ?", sessionID, instructorID).
		Count(&count).Error
	return count > 0, err
}

// ===== Chat =====

func (s *Store) CreateConversation(ctx context.Context, sessionID, title string) (*model.ChatConversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	if len([]rune(title)) > model.MaxConversationTitle {
		return nil, ErrInvalidTitle
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	conv := model.ChatConversation{SessionID: sessionID, Title: title, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.ChatConversation, error) {
	var conv model.ChatConversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// RenameConversation changes a conversation's title, the only chat field
// that is ever updated.
func (s *Store) RenameConversation(ctx context.Context, id, title string) (*model.ChatConversation, error) {
	title = strings.TrimSpace(title)
	if n := len([]rune(title)); n == 0 || n > model.MaxConversationTitle {
		return nil, ErrInvalidTitle
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(conv).Update("title", title).Error; err != nil {
		return nil, err
	}
	conv.Title = title
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, sessionID string) ([]model.ChatConversation, error) {
	var convs []model.ChatConversation
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&convs).Error
	return convs, err
}

type NewMessage struct {
	Role      string
	Content   string
	Metadata  datatypes.JSON
	Timestamp time.Time
}

// AppendMessage adds a message whose sequence number is the count of
// messages already in the conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, m NewMessage) (*model.ChatMessage, error) {
	if !model.ValidRole(m.Role) {
		return nil, ErrInvalidRole
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	msg := model.ChatMessage{
		ConversationID: conversationID,
		Role:           m.Role,
		Content:        m.Content,
		Metadata:       m.Metadata,
		Timestamp:      m.Timestamp,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.ChatConversation
		if err := tx.Select("id").First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&model.ChatMessage{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return err
		}
		msg.SequenceNumber = int(count)
		return tx.Omit(clause.Associations).Create(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence_number ASC").
		Find(&msgs).Error
	return msgs, err
}

// ListSessionMessages returns every message of every conversation in a
// session in timestamp order.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_conversations ON chat_conversations.id = chat_messages.conversation_id").
		Where("chat_conversations.session_id = ?", sessionID).
		Order("chat_messages.timestamp ASC, chat_messages.sequence_number ASC").
		Find(&msgs).Error
	return msgs, err
}
