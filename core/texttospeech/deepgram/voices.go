package deepgram

import "slices"

type deepgramVoice string

const (
	VoiceThalia  deepgramVoice = "aura-2-thalia-en"
	VoiceAsteria deepgramVoice = "aura-asteria-en"
	VoiceOrion   deepgramVoice = "aura-orion-en"
	VoiceLuna    deepgramVoice = "aura-luna-en"
)

var defaultVoice = VoiceThalia

func DefaultVoice() deepgramVoice { return defaultVoice }

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceThalia, VoiceAsteria, VoiceOrion, VoiceLuna}
}

func (v deepgramVoice) valid() bool {
	return slices.Contains(GetAvailableVoices(), v)
}
