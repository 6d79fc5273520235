package engine

import "strings"

// The transcription service finalizes after a fixed silence window with no
// regard for grammatical completeness. IsCompleteThought is the second,
// semantic gate: it decides whether a finalized transcript is a dispatchable
// contribution or a fragment that should be held until the speaker
// continues. The pattern lists below were tuned by example against real
// sessions; treat them as fixed contract, not as a starting point.

// Short utterances containing any of these are complete even at one to
// three words.
var backchannelWords = map[string]struct{}{
	"yes": {}, "no": {}, "okay": {}, "ok": {}, "sure": {}, "wait": {},
	"why": {}, "thanks": {}, "yeah": {}, "yep": {}, "nope": {}, "right": {},
	"maybe": {}, "please": {}, "sorry": {}, "hello": {}, "hi": {}, "hey": {},
	"bye": {}, "goodbye": {}, "stop": {}, "what": {}, "fine": {}, "good": {},
	"great": {}, "cool": {}, "exactly": {}, "absolutely": {}, "definitely": {},
}

// Idioms accepted outright even though the rules below would hold them.
var exceptionPhrases = map[string]struct{}{
	"i think so":   {},
	"let's go":     {},
	"i do":         {},
	"i don't know": {},
	"me too":       {},
	"not really":   {},
	"i guess so":   {},
}

// A transcript ending in one of these was almost certainly cut off
// mid-clause by the endpointing timeout.
var danglingPrepositions = map[string]struct{}{
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "with": {}, "for": {},
	"from": {}, "about": {}, "by": {}, "into": {}, "over": {}, "under": {},
	"through": {}, "between": {}, "during": {}, "without": {}, "before": {},
	"after": {}, "around": {}, "near": {}, "towards": {}, "upon": {},
}

var danglingConjunctions = map[string]struct{}{
	"and": {}, "but": {}, "or": {}, "nor": {}, "so": {}, "yet": {},
	"because": {}, "although": {}, "though": {}, "while": {}, "if": {},
	"which": {}, "who": {}, "whom": {}, "whose": {}, "whether": {},
	"unless": {}, "until": {}, "whereas": {}, "than": {}, "since": {},
}

var unfinishedStarters = []string{
	"i think", "i mean", "it is", "it was", "there are", "there is",
	"i am", "i was", "i will", "i would", "i have", "we are", "we were",
	"he is", "she is", "they are", "this is",
}

var bareTransitiveVerbs = map[string]struct{}{
	"want": {}, "need": {}, "like": {}, "love": {}, "hate": {}, "make": {},
	"take": {}, "give": {}, "tell": {}, "find": {}, "use": {}, "put": {},
	"bring": {}, "buy": {}, "watch": {}, "let": {},
}

// IsCompleteThought reports whether transcript reads as a complete
// conversational contribution ("ready to dispatch") rather than a fragment
// ("hold and await continuation").
func IsCompleteThought(transcript string) bool {
	normalized := normalizeTranscript(transcript)
	if normalized == "" {
		return false
	}

	words := strings.Fields(normalized)

	if len(words) <= 3 {
		for _, word := range words {
			if _, ok := backchannelWords[word]; ok {
				return true
			}
		}
	}

	if _, ok := exceptionPhrases[normalized]; ok {
		return true
	}

	lastWord := words[len(words)-1]
	if _, ok := danglingPrepositions[lastWord]; ok {
		return false
	}
	if _, ok := danglingConjunctions[lastWord]; ok {
		return false
	}
	for _, starter := range unfinishedStarters {
		if normalized == starter || strings.HasSuffix(normalized, " "+starter) {
			return false
		}
	}
	if _, ok := bareTransitiveVerbs[lastWord]; ok {
		return false
	}

	return true
}

// normalizeTranscript trims, lower-cases and strips a single trailing
// sentence-terminal punctuation mark.
func normalizeTranscript(transcript string) string {
	normalized := strings.ToLower(strings.TrimSpace(transcript))
	if len(normalized) > 0 {
		switch normalized[len(normalized)-1] {
		case '.', '!', '?':
			normalized = strings.TrimSpace(normalized[:len(normalized)-1])
		}
	}
	return normalized
}
