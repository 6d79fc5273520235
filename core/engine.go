package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"github.com/talkmate/talkmate-core/core/audio"
	"github.com/talkmate/talkmate-core/core/speechtotext"
)

// ErrSessionActive is returned by StartSession when a session already holds
// the audio resources.
var ErrSessionActive = errors.New("a session is already active")

// Engine is the conversation turn-taking engine. It owns the conversation
// state machine, the ordered turn history and the session lifecycle, and
// wires capture, transcription, generation and playback clients together.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	speechToText SpeechToText
	audioInput   AudioInput
	audioOutput  AudioOutput
	textToSpeech TextToSpeech
	llm          LLM

	topic            string
	greetingEnabled  bool
	sinceLastSession time.Duration

	onState             func(State)
	onTurn              func(Turn)
	onPendingTranscript func(string)
	onLevel             func(float64)

	// epoch advances on every session start, stop and barge-in. Async
	// results carry the epoch of the dispatch that produced them and are
	// discarded when it no longer matches.
	epoch atomic.Int64

	mu      sync.Mutex
	session *session

	stateMu           sync.RWMutex
	state             State
	turns             []Turn
	pendingTranscript string
}

func NewEngine(opts ...EngineOption) *Engine {
	engine := &Engine{
		state: StateIdle,
		turns: []Turn{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// StartSession acquires the audio resource set, opens the transcription
// stream and moves the engine to LISTENING. Resource acquisition failures
// leave the engine in ERROR; a later StartSession call is the explicit
// restart.
func (e *Engine) StartSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return ErrSessionActive
	}

	e.epoch.Add(1)

	sessionCtx, sessionCancel := context.WithCancel(ctx)
	newSession := newSession(e, sessionCtx, sessionCancel)

	if e.speechToText != nil {
		err := e.speechToText.Transcribe(sessionCtx,
			speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
				newSession.enqueue(interimTranscriptEvent{transcript: transcript})
			}),
			speechtotext.WithTranscriptionCallback(func(result speechtotext.TranscriptResult) {
				newSession.enqueue(finalTranscriptEvent{result: result})
			}),
			speechtotext.WithErrorCallback(func(err error) {
				newSession.enqueue(streamErrorEvent{err: err})
			}),
			speechtotext.WithCloseCallback(func() {
				newSession.enqueue(streamClosedEvent{})
			}),
			speechtotext.WithEncodingInfo(e.inputEncoding()),
		)
		if err != nil {
			sessionCancel()
			e.setState(StateError)
			return fmt.Errorf("failed to open transcription stream: %w", err)
		}
	}

	e.session = newSession
	newSession.start()

	if e.audioInput != nil {
		go func() {
			if err := e.audioInput.Stream(sessionCtx, newSession.onInputAudio); err != nil {
				newSession.enqueue(streamErrorEvent{err: fmt.Errorf("audio capture failed: %w", err)})
			}
		}()
	}

	e.setPendingTranscript("")
	e.setState(StateListening)

	if e.greetingEnabled {
		newSession.enqueue(greetingEvent{})
	}

	return nil
}

// StopSession releases every session resource and returns the engine to
// IDLE. Safe to call from any state, including ERROR and mid-playback;
// calling it with no session active is a no-op that still normalizes the
// state.
func (e *Engine) StopSession() {
	e.mu.Lock()
	activeSession := e.session
	e.session = nil
	e.mu.Unlock()

	e.epoch.Add(1)

	if activeSession != nil {
		activeSession.close()
	}

	e.setPendingTranscript("")
	e.setState(StateIdle)
}

// failSession is the teardown path for stream failures. Unlike StopSession
// it lands in ERROR, which requires an explicit restart.
func (e *Engine) failSession(failedSession *session) {
	e.mu.Lock()
	if e.session != failedSession {
		// A stop or restart got here first; nothing left to tear down.
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.mu.Unlock()

	e.epoch.Add(1)
	failedSession.close()

	e.setPendingTranscript("")
	e.setState(StateError)
}

// CancelTurn aborts the assistant's current turn, whether it is still being
// generated or already playing, and returns to LISTENING. A no-op outside
// THINKING and SPEAKING.
func (e *Engine) CancelTurn() {
	e.mu.Lock()
	activeSession := e.session
	e.mu.Unlock()

	if activeSession != nil {
		activeSession.enqueue(cancelTurnEvent{})
	}
}

func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Turns returns a deep copy of the conversation history in order.
func (e *Engine) Turns() []Turn {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	turns := []Turn{}
	if err := copier.Copy(&turns, e.turns); err != nil {
		log.Printf("Failed to copy turn history: %v", err)
	}
	return turns
}

// PendingTranscript returns the latest interim transcript, or the empty
// string when nothing is pending. Display-only; it never enters the history.
func (e *Engine) PendingTranscript() string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.pendingTranscript
}

func (e *Engine) setState(state State) {
	e.stateMu.Lock()
	changed := e.state != state
	e.state = state
	e.stateMu.Unlock()

	if changed && e.onState != nil {
		e.onState(state)
	}
}

func (e *Engine) appendTurn(role TurnRole, content string) Turn {
	turn := newTurn(role, content)

	e.stateMu.Lock()
	e.turns = append(e.turns, turn)
	e.stateMu.Unlock()

	logger.Info("turn appended", "role", string(role), "content", content)
	if e.onTurn != nil {
		e.onTurn(turn)
	}
	return turn
}

func (e *Engine) setPendingTranscript(transcript string) {
	e.stateMu.Lock()
	changed := e.pendingTranscript != transcript
	e.pendingTranscript = transcript
	e.stateMu.Unlock()

	if changed && e.onPendingTranscript != nil {
		e.onPendingTranscript(transcript)
	}
}

func (e *Engine) inputEncoding() audio.EncodingInfo {
	if e.audioInput != nil {
		return e.audioInput.EncodingInfo()
	}
	return audio.GetDefaultEncodingInfo()
}
