package engine

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/talkmate/talkmate-core/core/prompts"
	"github.com/talkmate/talkmate-core/core/texttospeech"
)

// fallbackReply is spoken when generation fails so the conversation never
// stalls silently.
const fallbackReply = "Sorry, I didn't quite catch that. Could you say it again?"

// dispatch runs the generation/synthesis round trip for one user turn, off
// the handler goroutine. The result comes back through the mailbox as a
// replyReadyEvent pinned to epoch; cancellation (barge-in, stop) simply
// abandons the round trip.
func (s *session) dispatch(ctx context.Context, epoch int64, history []Turn) {
	ctx, span := tracer.Start(ctx, "dispatch reply")
	defer span.End()
	span.SetAttributes(attribute.Int("history_length", len(history)))

	reply := fallbackReply
	if s.engine.llm != nil {
		instructions := prompts.Select(s.engine.topic, len(history))
		generated, err := s.engine.llm.Prompt(ctx, instructions, toMessages(history))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("Failed to generate reply, falling back: %v", err)
		} else {
			reply = generated
		}
	}

	s.speak(ctx, epoch, reply)
}

// speak synthesizes the reply and hands it to the mailbox. On synthesis
// failure the reply is still delivered, text-only, so it reaches the history.
func (s *session) speak(ctx context.Context, epoch int64, reply string) {
	var payload []byte
	if s.engine.textToSpeech != nil {
		opts := []texttospeech.SynthesisOption{}
		if s.engine.audioOutput != nil {
			opts = append(opts, texttospeech.WithEncodingInfo(s.engine.audioOutput.EncodingInfo()))
		}

		synthesized, err := s.engine.textToSpeech.Synthesize(ctx, reply, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Failed to synthesize reply, delivering text only: %v", err)
		} else {
			payload = synthesized
		}
	}

	s.enqueue(replyReadyEvent{epoch: epoch, reply: reply, audio: payload})
}
