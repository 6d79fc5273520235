package engine

import "time"

// ComposeGreeting picks the session's opening line from the time elapsed
// since the previous session. sinceLast <= 0 means there is no previous
// session on record. The line is fed down the assistant-reply path, so it is
// spoken and appended exactly like a generated reply.
func ComposeGreeting(sinceLast time.Duration) string {
	switch {
	case sinceLast <= 0:
		return "Hi! I'm your conversation partner. What would you like to talk about today?"
	case sinceLast < 24*time.Hour:
		return "Welcome back! Ready to pick up where we left off?"
	case sinceLast < 7*24*time.Hour:
		return "Good to hear from you again! How has your week been?"
	default:
		return "It's been a while! I'm glad you're back. What's new with you?"
	}
}
