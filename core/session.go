package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/talkmate/talkmate-core/core/audio"
	"github.com/talkmate/talkmate-core/core/speechtotext"
)

const sessionEventQueueCapacity = 16

// session owns everything that lives exactly as long as one conversation:
// the audio resource set, the mailbox goroutine, the speaker lock, the dedup
// witness and the held fragment. All fields below the mailbox are touched
// only from the handler goroutine.
type session struct {
	engine *Engine

	ctx    context.Context
	cancel context.CancelFunc

	queue   chan event
	closeCh chan struct{}
	done    chan struct{}
	endOnce sync.Once

	meter *audio.LevelMeter

	lock         speakerLock
	witness      dedupWitness
	heldFragment string

	// dispatchCancel aborts the in-flight generation/synthesis round trip on
	// barge-in.
	dispatchCancel context.CancelFunc
}

func newSession(e *Engine, ctx context.Context, cancel context.CancelFunc) *session {
	return &session{
		engine:  e,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan event, sessionEventQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		meter:   audio.NewLevelMeter(),
	}
}

func (s *session) start() {
	go func() {
		defer close(s.done)

		for {
			select {
			case <-s.closeCh:
				return
			case queuedEvent := <-s.queue:
				s.handle(queuedEvent)
			}
		}
	}()
}

// close tears the session down. Idempotent and safe to call while teardown
// from another path is already underway; it returns once the handler
// goroutine has drained and every resource is released.
func (s *session) close() {
	s.endOnce.Do(func() {
		close(s.closeCh)
		s.cancel()
		<-s.done

		if s.engine.audioOutput != nil {
			s.engine.audioOutput.ClearBuffer()
		}
		if s.engine.audioInput != nil {
			s.engine.audioInput.Close()
		}
		closeSpeechToText(s.engine.speechToText)
	})
}

// closeSpeechToText tolerates the common Close signatures so client
// implementations are not forced into one shape.
func closeSpeechToText(client SpeechToText) {
	switch c := client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(context.Background()); err != nil {
			log.Printf("Failed to close speech-to-text client: %v", err)
		}
	case interface{ Close(context.Context) }:
		c.Close(context.Background())
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			log.Printf("Failed to close speech-to-text client: %v", err)
		}
	case interface{ Close() }:
		c.Close()
	}
}

func (s *session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *session) enqueue(ev event) bool {
	if s.isClosed() {
		return false
	}

	select {
	case <-s.closeCh:
		return false
	case s.queue <- ev:
		return true
	}
}

// onInputAudio runs on the capture path for every frame. Frames are only
// forwarded to the transcription socket while the session is live.
func (s *session) onInputAudio(frame []byte) {
	if s.isClosed() {
		return
	}
	if !s.engine.State().active() {
		return
	}

	if s.engine.onLevel != nil {
		s.engine.onLevel(s.meter.Feed(frame))
	}

	if s.engine.speechToText != nil {
		if err := s.engine.speechToText.SendAudio(frame); err != nil {
			log.Printf("Failed to forward audio frame: %v", err)
		}
	}
}

// handle is the single state-transition function. Events arrive here one at
// a time, so every check-then-act sequence below is race-free.
func (s *session) handle(ev event) {
	switch ev := ev.(type) {
	case interimTranscriptEvent:
		if s.engine.State().active() {
			s.engine.setPendingTranscript(ev.transcript)
		}

	case finalTranscriptEvent:
		s.handleFinalTranscript(ev.result)

	case replyReadyEvent:
		s.handleReplyReady(ev)

	case playbackEndedEvent:
		if ev.epoch != s.engine.epoch.Load() {
			return
		}
		if s.engine.State() == StateSpeaking {
			s.engine.setState(StateListening)
		}

	case greetingEvent:
		s.handleGreeting()

	case cancelTurnEvent:
		state := s.engine.State()
		if state == StateThinking || state == StateSpeaking {
			s.interruptAssistant()
		}

	case streamErrorEvent:
		logger.Error("transcription stream failed", "error", ev.err)
		go s.engine.failSession(s)

	case streamClosedEvent:
		// The stream closing while the session is still logically active is
		// a failure; a deliberate stop detaches the session first, so this
		// event never reaches the handler in that case.
		logger.Error("transcription stream closed while session active")
		go s.engine.failSession(s)
	}
}

func (s *session) handleFinalTranscript(result speechtotext.TranscriptResult) {
	state := s.engine.State()
	if !state.active() {
		return
	}

	s.engine.setPendingTranscript("")

	if !s.lock.admit(result) {
		logger.Info("dropping off-speaker transcript",
			"transcript", result.Transcript, "speakers", result.Speakers)
		return
	}

	if !s.witness.admit(result.Transcript, time.Now()) {
		logger.Info("dropping duplicate transcript", "transcript", result.Transcript)
		return
	}

	// Barge-in: the user spoke while the assistant was thinking or
	// speaking. Cancel whatever is in flight before treating this
	// transcript as the start of a new candidate turn.
	if state == StateThinking || state == StateSpeaking {
		s.interruptAssistant()
	}

	text := result.Transcript
	if s.heldFragment != "" {
		text = s.heldFragment + " " + text
	}
	if !IsCompleteThought(text) {
		s.heldFragment = text
		return
	}
	s.heldFragment = ""

	s.engine.appendTurn(TurnRoleUser, text)
	s.engine.setState(StateThinking)

	dispatchCtx, dispatchCancel := context.WithCancel(s.ctx)
	s.dispatchCancel = dispatchCancel
	go s.dispatch(dispatchCtx, s.engine.epoch.Load(), s.engine.Turns())
}

func (s *session) handleReplyReady(ev replyReadyEvent) {
	if ev.epoch != s.engine.epoch.Load() {
		return
	}
	if s.engine.State() != StateThinking {
		return
	}
	s.dispatchCancel = nil

	// The assistant turn is appended only now that its audio is ready, so
	// displayed text never precedes the sound that carries it.
	turn := s.engine.appendTurn(TurnRoleAssistant, ev.reply)

	if s.engine.audioOutput == nil || len(ev.audio) == 0 {
		s.engine.setState(StateListening)
		return
	}

	if err := s.engine.audioOutput.SendAudio(ev.audio); err != nil {
		log.Printf("Failed to queue reply audio: %v", err)
		s.engine.setState(StateListening)
		return
	}

	epoch := ev.epoch
	if err := s.engine.audioOutput.Mark(turn.ID, func(string) {
		s.enqueue(playbackEndedEvent{epoch: epoch})
	}); err != nil {
		log.Printf("Failed to mark reply audio: %v", err)
		s.engine.setState(StateListening)
		return
	}

	s.engine.setState(StateSpeaking)
}

func (s *session) handleGreeting() {
	if s.engine.State() != StateListening {
		return
	}

	s.engine.setState(StateThinking)

	greeting := ComposeGreeting(s.engine.sinceLastSession)
	dispatchCtx, dispatchCancel := context.WithCancel(s.ctx)
	s.dispatchCancel = dispatchCancel
	epoch := s.engine.epoch.Load()
	go s.speak(dispatchCtx, epoch, greeting)
}

// interruptAssistant is the hard cancel: stop playback immediately, abort
// the in-flight round trip and advance the epoch so any result already on
// the wire is discarded on arrival. Re-arms listening with no extra latency.
func (s *session) interruptAssistant() {
	s.engine.epoch.Add(1)

	if s.dispatchCancel != nil {
		s.dispatchCancel()
		s.dispatchCancel = nil
	}
	if s.engine.audioOutput != nil {
		s.engine.audioOutput.ClearBuffer()
	}

	s.engine.setState(StateListening)
}
