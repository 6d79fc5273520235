// Package llms holds the message types shared by language-model clients.
package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single attributed message in the conversation history handed
// to a language-model client.
type Message struct {
	Role    MessageRole
	Content string
}
