package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/talkmate/talkmate-core/core/llms"
)

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one attributed utterance in the conversation history. The history
// is ordered and append-only; turns are never rewritten once appended.
type Turn struct {
	ID        string
	Role      TurnRole
	Content   string
	Timestamp time.Time
}

func newTurn(role TurnRole, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func toMessages(turns []Turn) []llms.Message {
	messages := make([]llms.Message, 0, len(turns))
	for _, turn := range turns {
		role := llms.MessageRoleUser
		if turn.Role == TurnRoleAssistant {
			role = llms.MessageRoleAssistant
		}
		messages = append(messages, llms.Message{Role: role, Content: turn.Content})
	}
	return messages
}
