package engine

import "github.com/talkmate/talkmate-core/core/speechtotext"

// Every asynchronous source (socket messages, synthesis results, playback
// marks) is funneled through one of these events into the session mailbox,
// where a single handler applies them in order. State transitions only ever
// happen inside that handler.
type event interface {
	isEvent()
}

type interimTranscriptEvent struct {
	transcript string
}

type finalTranscriptEvent struct {
	result speechtotext.TranscriptResult
}

// replyReadyEvent carries a generated reply together with its synthesized
// audio. The epoch pins it to the dispatch that produced it; a stale epoch
// means a stop or barge-in happened while the network round trip was in
// flight and the result must be discarded.
type replyReadyEvent struct {
	epoch int64
	reply string
	audio []byte
}

type playbackEndedEvent struct {
	epoch int64
}

type greetingEvent struct{}

type cancelTurnEvent struct{}

type streamErrorEvent struct {
	err error
}

type streamClosedEvent struct{}

func (interimTranscriptEvent) isEvent() {}
func (finalTranscriptEvent) isEvent()   {}
func (replyReadyEvent) isEvent()        {}
func (playbackEndedEvent) isEvent()     {}
func (greetingEvent) isEvent()          {}
func (cancelTurnEvent) isEvent()        {}
func (streamErrorEvent) isEvent()       {}
func (streamClosedEvent) isEvent()      {}
