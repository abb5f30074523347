package replay

import (
	"time"

	"github.com/wooogler/swag/internal/event"
)

// ActiveGapCap bounds how much one gap between snapshots adds to active time.
const ActiveGapCap = 2 * time.Minute

type Summary struct {
	TotalEditorEvents     int   `json:"totalEditorEvents"`
	Snapshots             int   `json:"snapshots"`
	Submissions           int   `json:"submissions"`
	ExternalPasteAttempts int   `json:"externalPasteAttempts"`
	InternalPastes        int   `json:"internalPastes"`
	TotalConversations    int   `json:"totalConversations"`
	TotalChatMessages     int   `json:"totalChatMessages"`
	UserMessages          int   `json:"userMessages"`
	AssistantMessages     int   `json:"assistantMessages"`
	ActiveTimeMs          int64 `json:"activeTimeMs"`
	WordCount             int   `json:"wordCount"`
}

// Summarize computes aggregate counts for a session. The word count comes
// from the latest submission, falling back to the latest snapshot.
func Summarize(tl *Timeline, conversations int) Summary {
	s := Summary{
		TotalEditorEvents:  len(tl.events),
		Snapshots:          len(tl.snapshots),
		Submissions:        len(tl.submissions),
		TotalConversations: conversations,
		TotalChatMessages:  len(tl.messages),
	}

	for _, e := range tl.pastes {
		if e.Payload.(event.Paste).Internal {
			s.InternalPastes++
		} else {
			s.ExternalPasteAttempts++
		}
	}

	for _, m := range tl.messages {
		switch m.Role {
		case "user":
			s.UserMessages++
		case "assistant":
			s.AssistantMessages++
		}
	}

	limit := ActiveGapCap.Milliseconds()
	for i := 1; i < len(tl.snapshots); i++ {
		s.ActiveTimeMs += min(tl.snapshots[i].Timestamp-tl.snapshots[i-1].Timestamp, limit)
	}

	var final event.Document
	if n := len(tl.submissions); n > 0 {
		final, _ = tl.submissions[n-1].Document()
	} else if n := len(tl.snapshots); n > 0 {
		final, _ = tl.snapshots[n-1].Document()
	}
	if final != nil {
		s.WordCount = WordCount(final)
	}
	return s
}
