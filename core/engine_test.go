package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talkmate/talkmate-core/core/audio"
	"github.com/talkmate/talkmate-core/core/llms"
	"github.com/talkmate/talkmate-core/core/speechtotext"
	"github.com/talkmate/talkmate-core/core/texttospeech"
)

type stubSpeechToText struct {
	mu            sync.Mutex
	opts          speechtotext.TranscriptionOptions
	sent          [][]byte
	transcribeErr error
	closeCalls    int
}

func (s *stubSpeechToText) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transcribeErr != nil {
		return s.transcribeErr
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return nil
}

func (s *stubSpeechToText) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, audio)
	return nil
}

func (s *stubSpeechToText) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
}

func (s *stubSpeechToText) emitInterim(transcript string) {
	s.mu.Lock()
	callback := s.opts.InterimTranscriptionCallback
	s.mu.Unlock()
	if callback != nil {
		callback(transcript)
	}
}

func (s *stubSpeechToText) emitFinal(transcript string, speakers ...int) {
	s.mu.Lock()
	callback := s.opts.TranscriptionCallback
	s.mu.Unlock()
	if callback != nil {
		callback(speechtotext.TranscriptResult{Transcript: transcript, Speakers: speakers})
	}
}

func (s *stubSpeechToText) emitError(err error) {
	s.mu.Lock()
	callback := s.opts.ErrorCallback
	s.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

type stubLLM struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	calls int
}

func (l *stubLLM) Prompt(ctx context.Context, instructions string, history []llms.Message) (string, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gate
	err := l.err
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "reply to nothing", nil
	}
	return "reply to: " + history[len(history)-1].Content, nil
}

type stubTextToSpeech struct {
	err error
}

func (t *stubTextToSpeech) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return []byte("audio:" + text), nil
}

type stubAudioOutput struct {
	mu         sync.Mutex
	sent       [][]byte
	marks      []func(string)
	clearCalls int
}

func (o *stubAudioOutput) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (o *stubAudioOutput) SendAudio(audio []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, audio)
	return nil
}

func (o *stubAudioOutput) ClearBuffer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearCalls++
	o.marks = nil
}

func (o *stubAudioOutput) Mark(name string, callback func(string)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.marks = append(o.marks, callback)
	return nil
}

// finishPlayback fires the oldest pending mark, as the device would when the
// queued audio drains past it.
func (o *stubAudioOutput) finishPlayback() {
	o.mu.Lock()
	var callback func(string)
	if len(o.marks) > 0 {
		callback = o.marks[0]
		o.marks = o.marks[1:]
	}
	o.mu.Unlock()
	if callback != nil {
		callback("reply")
	}
}

func (o *stubAudioOutput) clears() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clearCalls
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected state %s, still %s after timeout", want, e.State())
}

func waitForTurnCount(t *testing.T, e *Engine, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Turns()) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d turns, have %d after timeout", want, len(e.Turns()))
}

func newTestEngine(opts ...EngineOption) (*Engine, *stubSpeechToText, *stubAudioOutput) {
	stt := &stubSpeechToText{}
	out := &stubAudioOutput{}
	baseOpts := []EngineOption{
		WithSpeechToTextClient(stt),
		WithAudioOutput(out),
		WithTextToSpeechClient(&stubTextToSpeech{}),
		WithLLMClient(&stubLLM{}),
	}
	return NewEngine(append(baseOpts, opts...)...), stt, out
}

func TestStartSessionMovesToListening(t *testing.T) {
	e, _, _ := newTestEngine()
	t.Cleanup(e.StopSession)

	if e.State() != StateIdle {
		t.Fatalf("expected a fresh engine to be idle, got %s", e.State())
	}
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if e.State() != StateListening {
		t.Fatalf("expected LISTENING after start, got %s", e.State())
	}
}

func TestStartSessionRejectsSecondSession(t *testing.T) {
	e, _, _ := newTestEngine()
	t.Cleanup(e.StopSession)

	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if err := e.StartSession(t.Context()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStartSessionFailsToErrorState(t *testing.T) {
	stt := &stubSpeechToText{transcribeErr: errors.New("no connection")}
	e := NewEngine(WithSpeechToTextClient(stt))

	if err := e.StartSession(t.Context()); err == nil {
		t.Fatalf("expected start to fail when transcription cannot open")
	}
	if e.State() != StateError {
		t.Fatalf("expected ERROR after failed start, got %s", e.State())
	}

	// An explicit restart recovers.
	stt.transcribeErr = nil
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to restart after error: %v", err)
	}
	t.Cleanup(e.StopSession)
	if e.State() != StateListening {
		t.Fatalf("expected LISTENING after restart, got %s", e.State())
	}
}

func TestCompleteTurnRoundTrip(t *testing.T) {
	e, stt, out := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("i went to the market yesterday", 0)

	waitForState(t, e, StateSpeaking)
	turns := e.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected user and assistant turns, got %d", len(turns))
	}
	if turns[0].Role != TurnRoleUser || turns[0].Content != "i went to the market yesterday" {
		t.Fatalf("unexpected user turn: %+v", turns[0])
	}
	if turns[1].Role != TurnRoleAssistant {
		t.Fatalf("expected assistant turn second, got %+v", turns[1])
	}

	out.mu.Lock()
	sent := len(out.sent)
	out.mu.Unlock()
	if sent != 1 {
		t.Fatalf("expected exactly one audio payload queued, got %d", sent)
	}

	out.finishPlayback()
	waitForState(t, e, StateListening)
}

func TestIncompleteThoughtIsHeldAndJoined(t *testing.T) {
	e, stt, _ := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("i went to", 0)

	// The fragment is held: no turn, no reply, still listening.
	time.Sleep(50 * time.Millisecond)
	if got := len(e.Turns()); got != 0 {
		t.Fatalf("expected no turns for a held fragment, got %d", got)
	}
	if e.State() != StateListening {
		t.Fatalf("expected LISTENING while holding a fragment, got %s", e.State())
	}

	stt.emitFinal("the market yesterday", 0)

	waitForTurnCount(t, e, 2)
	turns := e.Turns()
	if turns[0].Content != "i went to the market yesterday" {
		t.Fatalf("expected joined fragment turn, got %q", turns[0].Content)
	}
}

func TestBargeInDuringPlayback(t *testing.T) {
	e, stt, out := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("tell me a story", 0)
	waitForState(t, e, StateSpeaking)

	stt.emitFinal("actually never mind", 0)

	// The interruption drops playback and the new transcript becomes a turn
	// of its own, which runs a fresh round trip.
	waitForTurnCount(t, e, 4)
	if out.clears() == 0 {
		t.Fatalf("expected playback buffer to be cleared on barge-in")
	}
	turns := e.Turns()
	if turns[2].Role != TurnRoleUser || turns[2].Content != "actually never mind" {
		t.Fatalf("expected interrupting transcript as third turn, got %+v", turns[2])
	}

	// The first reply's mark was dropped with the buffer; only the new
	// reply's playback can end the SPEAKING state.
	waitForState(t, e, StateSpeaking)
	out.finishPlayback()
	waitForState(t, e, StateListening)
}

func TestOffSpeakerTranscriptDoesNotInterrupt(t *testing.T) {
	e, stt, out := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("let's talk about movies", 0)
	waitForState(t, e, StateSpeaking)
	clearsBefore := out.clears()

	stt.emitFinal("dinner is ready", 1)

	time.Sleep(50 * time.Millisecond)
	if e.State() != StateSpeaking {
		t.Fatalf("expected off-speaker audio to leave playback running, got %s", e.State())
	}
	if out.clears() != clearsBefore {
		t.Fatalf("expected no buffer clear for off-speaker transcript")
	}
	if got := len(e.Turns()); got != 2 {
		t.Fatalf("expected off-speaker transcript to be dropped, have %d turns", got)
	}
}

func TestDuplicateTranscriptSuppressed(t *testing.T) {
	e, stt, _ := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("i love pizza", 0)
	stt.emitFinal("i love pizza", 0)

	waitForTurnCount(t, e, 2)
	time.Sleep(50 * time.Millisecond)

	userTurns := 0
	for _, turn := range e.Turns() {
		if turn.Role == TurnRoleUser {
			userTurns++
		}
	}
	if userTurns != 1 {
		t.Fatalf("expected the duplicate to be suppressed, got %d user turns", userTurns)
	}
}

func TestStaleReplyDiscardedAfterStop(t *testing.T) {
	llm := &stubLLM{gate: make(chan struct{})}
	e, stt, _ := newTestEngine(WithLLMClient(llm))
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("what do you think", 0)
	waitForState(t, e, StateThinking)

	e.StopSession()
	close(llm.gate)

	time.Sleep(50 * time.Millisecond)
	if e.State() != StateIdle {
		t.Fatalf("expected IDLE to stick after stop, got %s", e.State())
	}
	for _, turn := range e.Turns() {
		if turn.Role == TurnRoleAssistant {
			t.Fatalf("expected no assistant turn from a stopped session, got %q", turn.Content)
		}
	}
}

func TestStopSessionIsIdempotent(t *testing.T) {
	e, stt, _ := newTestEngine()
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	e.StopSession()
	e.StopSession()
	e.StopSession()

	if e.State() != StateIdle {
		t.Fatalf("expected IDLE after stop, got %s", e.State())
	}
	stt.mu.Lock()
	closeCalls := stt.closeCalls
	stt.mu.Unlock()
	if closeCalls != 1 {
		t.Fatalf("expected transcription client closed exactly once, got %d", closeCalls)
	}
}

func TestStreamErrorTearsDownToError(t *testing.T) {
	e, stt, _ := newTestEngine()
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitError(errors.New("socket dropped"))

	waitForState(t, e, StateError)

	// Transcripts from the dead stream are ignored.
	stt.emitFinal("hello", 0)
	time.Sleep(50 * time.Millisecond)
	if got := len(e.Turns()); got != 0 {
		t.Fatalf("expected no turns after stream failure, got %d", got)
	}

	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to restart after stream failure: %v", err)
	}
	t.Cleanup(e.StopSession)
}

func TestGreetingIsSpokenOnStart(t *testing.T) {
	e, _, out := newTestEngine(WithGreeting(0))
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	waitForState(t, e, StateSpeaking)
	turns := e.Turns()
	if len(turns) != 1 || turns[0].Role != TurnRoleAssistant {
		t.Fatalf("expected a single assistant greeting turn, got %+v", turns)
	}
	if turns[0].Content != ComposeGreeting(0) {
		t.Fatalf("unexpected greeting: %q", turns[0].Content)
	}

	out.finishPlayback()
	waitForState(t, e, StateListening)
}

func TestFallbackReplyOnGenerationFailure(t *testing.T) {
	e, stt, _ := newTestEngine(WithLLMClient(&stubLLM{err: errors.New("model unavailable")}))
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("how are you", 0)

	waitForTurnCount(t, e, 2)
	turns := e.Turns()
	if turns[1].Content != fallbackReply {
		t.Fatalf("expected fallback reply, got %q", turns[1].Content)
	}
}

func TestTextOnlyReplyOnSynthesisFailure(t *testing.T) {
	e, stt, out := newTestEngine(WithTextToSpeechClient(&stubTextToSpeech{err: errors.New("voice unavailable")}))
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("how are you", 0)

	// The reply still reaches the history, and with nothing to play the
	// engine goes straight back to listening.
	waitForTurnCount(t, e, 2)
	waitForState(t, e, StateListening)
	out.mu.Lock()
	sent := len(out.sent)
	out.mu.Unlock()
	if sent != 0 {
		t.Fatalf("expected no audio queued when synthesis fails, got %d payloads", sent)
	}
}

func TestCancelTurnDuringPlayback(t *testing.T) {
	e, stt, out := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("tell me everything", 0)
	waitForState(t, e, StateSpeaking)

	e.CancelTurn()

	waitForState(t, e, StateListening)
	if out.clears() == 0 {
		t.Fatalf("expected playback buffer cleared on cancel")
	}
	if got := len(e.Turns()); got != 2 {
		t.Fatalf("expected history untouched by cancel, got %d turns", got)
	}
}

func TestPendingTranscriptLifecycle(t *testing.T) {
	var observed []string
	var observedMu sync.Mutex
	e, stt, _ := newTestEngine(WithPendingTranscriptCallback(func(transcript string) {
		observedMu.Lock()
		observed = append(observed, transcript)
		observedMu.Unlock()
	}))
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitInterim("i went")
	stt.emitInterim("i went to the")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && e.PendingTranscript() != "i went to the" {
		time.Sleep(time.Millisecond)
	}
	if got := e.PendingTranscript(); got != "i went to the" {
		t.Fatalf("expected latest interim transcript pending, got %q", got)
	}

	stt.emitFinal("i went to the market", 0)
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && e.PendingTranscript() != "" {
		time.Sleep(time.Millisecond)
	}
	if got := e.PendingTranscript(); got != "" {
		t.Fatalf("expected pending transcript cleared by final, got %q", got)
	}

	observedMu.Lock()
	defer observedMu.Unlock()
	if len(observed) < 3 {
		t.Fatalf("expected interim updates and the clear to reach the callback, got %v", observed)
	}
}

func TestStateCallbackObservesTransitions(t *testing.T) {
	var states []State
	var statesMu sync.Mutex
	e, stt, out := newTestEngine(WithStateCallback(func(state State) {
		statesMu.Lock()
		states = append(states, state)
		statesMu.Unlock()
	}))
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("hello there everyone", 0)
	waitForState(t, e, StateSpeaking)
	out.finishPlayback()
	waitForState(t, e, StateListening)
	e.StopSession()

	statesMu.Lock()
	defer statesMu.Unlock()
	want := []State{StateListening, StateThinking, StateSpeaking, StateListening, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, states)
		}
	}
}

func TestTurnsReturnsACopy(t *testing.T) {
	e, stt, _ := newTestEngine()
	t.Cleanup(e.StopSession)
	if err := e.StartSession(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	stt.emitFinal("hello there everyone", 0)
	waitForTurnCount(t, e, 2)

	turns := e.Turns()
	turns[0].Content = "tampered"
	if e.Turns()[0].Content == "tampered" {
		t.Fatalf("expected Turns to return an isolated copy")
	}
}
