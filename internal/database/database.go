package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/model"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Instructor{},
		&model.Assignment{},
		&model.Session{},
		&model.EditorEvent{},
		&model.ChatConversation{},
		&model.ChatMessage{},
	)
	if err != nil {
		return err
	}

	// Replay reads a session's log in sequence order; the unique index covers it.
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_editor_events_session_seq ON editor_events(session_id, sequence_number)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_seq ON chat_messages(conversation_id, sequence_number)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_chat_conversations_session_created ON chat_conversations(session_id, created_at)")

	return nil
}
