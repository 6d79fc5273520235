package engine

import (
	"context"
	"time"

	"github.com/talkmate/talkmate-core/core/audio"
	"github.com/talkmate/talkmate-core/core/llms"
	"github.com/talkmate/talkmate-core/core/speechtotext"
	"github.com/talkmate/talkmate-core/core/texttospeech"
)

type EngineOption func(*Engine)

// SpeechToText streams capture frames out and delivers transcripts back
// through the callbacks configured on Transcribe.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToTextClient(client SpeechToText) EngineOption {
	return func(e *Engine) { e.speechToText = client }
}

// AudioInput is the microphone capture gateway. Stream blocks until ctx is
// cancelled, delivering fixed-rate linear PCM frames in capture order.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

func WithAudioInput(client AudioInput) EngineOption {
	return func(e *Engine) { e.audioInput = client }
}

// AudioOutput is the playback device. Marks registered behind queued audio
// report playback progress; ClearBuffer is the hard cancel and must drop
// pending marks along with the audio.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(name string, callback func(string)) error
}

func WithAudioOutput(client AudioOutput) EngineOption {
	return func(e *Engine) { e.audioOutput = client }
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

func WithTextToSpeechClient(client TextToSpeech) EngineOption {
	return func(e *Engine) { e.textToSpeech = client }
}

type LLM interface {
	Prompt(ctx context.Context, instructions string, history []llms.Message) (string, error)
}

func WithLLMClient(client LLM) EngineOption {
	return func(e *Engine) { e.llm = client }
}

// WithTopic sets the practice topic used for system-instruction selection.
func WithTopic(topic string) EngineOption {
	return func(e *Engine) { e.topic = topic }
}

// WithGreeting makes the session open with a spoken greeting chosen from the
// time elapsed since the previous session. Zero sinceLast means first-ever
// session.
func WithGreeting(sinceLast time.Duration) EngineOption {
	return func(e *Engine) {
		e.greetingEnabled = true
		e.sinceLastSession = sinceLast
	}
}

// WithStateCallback registers a callback invoked after every state
// transition.
func WithStateCallback(callback func(state State)) EngineOption {
	return func(e *Engine) { e.onState = callback }
}

// WithTurnCallback registers a callback invoked after every appended turn.
func WithTurnCallback(callback func(turn Turn)) EngineOption {
	return func(e *Engine) { e.onTurn = callback }
}

// WithPendingTranscriptCallback registers a callback for live interim
// transcript updates. Interim text is display-only and never forms a turn.
func WithPendingTranscriptCallback(callback func(transcript string)) EngineOption {
	return func(e *Engine) { e.onPendingTranscript = callback }
}

// WithLevelCallback registers a callback for the coarse input loudness
// signal, in [0, 1]. The callback runs on the capture path and should not
// block.
func WithLevelCallback(callback func(level float64)) EngineOption {
	return func(e *Engine) { e.onLevel = callback }
}
