package speechtotext

import "github.com/talkmate/talkmate-core/core/audio"

// TranscriptResult is one finalized transcript together with the word-level
// speaker tags the service attached to it. Speakers holds the distinct tags
// in order of appearance and is empty when diarization produced none.
type TranscriptResult struct {
	Transcript string
	Speakers   []int
}

// Tagged reports whether the result carries any speaker attribution.
func (r TranscriptResult) Tagged() bool { return len(r.Speakers) > 0 }

type TranscriptionOptions struct {
	InterimTranscriptionCallback func(transcript string)
	TranscriptionCallback        func(result TranscriptResult)

	SpeechStartedCallback func()

	// ErrorCallback is invoked on unrecoverable connection failures.
	ErrorCallback func(err error)
	// CloseCallback is invoked when the connection closes, whether or not an
	// error preceded it.
	CloseCallback func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithTranscriptionCallback(callback func(result TranscriptResult)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithCloseCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.CloseCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
