package engine

import "testing"

func TestIsCompleteThought(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		// Short-utterance allow-list.
		{"yes", true},
		{"Yes.", true},
		{"okay sure", true},
		{"wait", true},
		{"Hi there", true},
		{"thanks a lot", true},

		// Exception phrases.
		{"I think so", true},
		{"let's go", true},
		{"I do", true},
		{"I don't know", true},

		// Dangling prepositions.
		{"I want to go to", false},
		{"she was talking about", false},
		{"we drove through", false},

		// Dangling conjunctions and relative pronouns.
		{"I went to the store and", false},
		{"I wanted to call you because", false},
		{"that's the person who", false},

		// Unfinished sentence starters.
		{"I think", false},
		{"well, it is", false},
		{"there are", false},

		// Bare transitive verbs.
		{"I really want", false},
		{"could you give", false},

		// Complete contributions.
		{"That was a great day", true},
		{"I love pizza", true},
		{"My weekend was pretty relaxing, I stayed home and read.", true},
		{"I went to the store and bought some milk", true},

		// Degenerate input.
		{"", false},
		{"   ", false},
		{"?", false},
	}

	for _, tt := range tests {
		if got := IsCompleteThought(tt.transcript); got != tt.want {
			t.Errorf("IsCompleteThought(%q) = %t, want %t", tt.transcript, got, tt.want)
		}
	}
}

func TestNormalizeTranscriptStripsSingleTerminalMark(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello there.", "hello there"},
		{"Hello there!!", "hello there!"},
		{"  What?  ", "what"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := normalizeTranscript(tt.in); got != tt.want {
			t.Errorf("normalizeTranscript(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
