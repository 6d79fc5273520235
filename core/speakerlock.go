package engine

import (
	"slices"
	"time"

	"github.com/talkmate/talkmate-core/core/speechtotext"
)

// dedupWindow suppresses the duplicate finalized transcripts the
// transcription service occasionally re-emits under jitter.
const dedupWindow = time.Second

// speakerLock commits the session to the first identified speaker. The
// capture stream can pick up a second voice, most commonly the assistant's
// own playback over a loudspeaker, and that voice must never be treated as
// the practicing user. Set at most once; only a full session restart
// discards it.
type speakerLock struct {
	speaker *int
}

// admit reports whether a finalized result may pass the lock, locking onto
// the result's first tag when the lock is still open. Untagged results pass
// (fail-open: most finals carry no tags).
func (l *speakerLock) admit(result speechtotext.TranscriptResult) bool {
	if !result.Tagged() {
		return true
	}

	if l.speaker == nil {
		locked := result.Speakers[0]
		l.speaker = &locked
		return true
	}

	return slices.Contains(result.Speakers, *l.speaker)
}

// dedupWitness remembers the most recently accepted finalized transcript so
// an identical retransmission inside the dedup window can be dropped.
type dedupWitness struct {
	text       string
	observedAt time.Time
}

// admit reports whether text is a fresh transcript and records it if so.
func (w *dedupWitness) admit(text string, now time.Time) bool {
	if text == w.text && now.Sub(w.observedAt) < dedupWindow {
		return false
	}

	w.text = text
	w.observedAt = now
	return true
}
