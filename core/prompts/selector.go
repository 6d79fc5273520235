// Package prompts selects the leading system instruction for reply
// generation. Selection is stateless: it depends only on the configured
// topic and how far the conversation has progressed.
package prompts

import (
	"fmt"
	"strings"
)

type Phase string

const (
	PhaseOpening     Phase = "opening"
	PhasePracticing  Phase = "practicing"
	PhaseWindingDown Phase = "winding-down"
)

const (
	openingTurnLimit     = 4
	windingDownTurnStart = 24
)

// PhaseForTurnCount maps the number of turns exchanged so far onto a
// conversation phase.
func PhaseForTurnCount(turnCount int) Phase {
	switch {
	case turnCount < openingTurnLimit:
		return PhaseOpening
	case turnCount >= windingDownTurnStart:
		return PhaseWindingDown
	default:
		return PhasePracticing
	}
}

const baseInstruction = "You are a friendly conversation partner helping the user practice " +
	"spoken English. Reply in one or two short, natural sentences, the way a " +
	"person would speak. Never use lists, markdown, or emoji. Ask at most one " +
	"question per reply."

var phaseInstructions = map[Phase]string{
	PhaseOpening: "The conversation is just starting. Keep the tone warm and " +
		"easy, and help the user settle in with simple questions.",
	PhasePracticing: "The conversation is underway. Follow up on what the user " +
		"says, gently stretch their vocabulary, and keep them talking.",
	PhaseWindingDown: "The conversation has been going for a while. Start " +
		"wrapping up naturally and leave the user with an encouraging note.",
}

// Select composes the system instruction for the given topic and progress.
// topic may be empty, in which case the conversation is free-form.
func Select(topic string, turnCount int) string {
	parts := []string{baseInstruction, phaseInstructions[PhaseForTurnCount(turnCount)]}

	if topic = strings.TrimSpace(topic); topic != "" {
		parts = append(parts, fmt.Sprintf("Today's practice topic is %q. Steer the conversation back to it when it drifts.", topic))
	}

	return strings.Join(parts, " ")
}
