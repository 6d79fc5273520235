// Package deepgram implements the streaming transcription client against the
// Deepgram listen API. One client maintains at most one live websocket at a
// time, pumps linear16 frames outbound and delivers interim and finalized
// transcripts (with word-level speaker tags) inbound. A client is reusable:
// after Close, a later Transcribe opens a fresh stream.
package deepgram

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type TranscriptionClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	lastAudioTs time.Time

	// closed stops the current stream's keep-alive loop. Replaced on every
	// Transcribe so closing one stream cannot disarm a later one.
	closed chan struct{}
}

func NewTranscriptionClient() *TranscriptionClient {
	return &TranscriptionClient{}
}

// Close stops the current stream's keep-alive loop and asks the service to
// flush and close the stream. Safe to call repeatedly and with no stream
// open; the client stays usable for a later Transcribe.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed != nil {
		select {
		case <-s.closed:
		default:
			close(s.closed)
		}
	}

	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "CloseStream"})
	// The read loop keeps draining the flushed finals from its own handle
	// until the service closes the socket.
	s.conn = nil
	return err
}
