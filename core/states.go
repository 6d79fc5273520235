package engine

// State is the single source of truth other components consult before
// acting. Exactly one state is active per session and transitions are
// serialized through the session mailbox.
type State string

const (
	StateIdle      State = "IDLE"
	StateListening State = "LISTENING"
	StateThinking  State = "THINKING"
	StateSpeaking  State = "SPEAKING"
	StateError     State = "ERROR"
)

func (s State) String() string { return string(s) }

// active reports whether a session owns live audio resources in this state.
func (s State) active() bool {
	return s == StateListening || s == StateThinking || s == StateSpeaking
}
