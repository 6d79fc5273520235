package audio

import (
	"encoding/binary"
	"math"
)

// LevelMeter derives a coarse loudness signal from a PCM16 capture stream.
// It feeds UI level bars and a hysteresis speech gate used by input paths
// that run without a streaming transcriber.
type LevelMeter struct {
	smoothing float64
	level     float64

	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewLevelMeter returns a meter tuned for 16 kHz mono linear16 frames of
// a few hundred milliseconds.
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{
		smoothing:        0.4,
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     2,
		silenceFrames:    4,
	}
}

// Feed consumes one linear16 little-endian frame and returns the smoothed
// loudness in [0, 1].
func (m *LevelMeter) Feed(pcm []byte) float64 {
	if len(pcm) < 2 {
		return m.level
	}

	var sum float64
	samples := len(pcm) / 2
	for i := 0; i < samples; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(samples))

	m.level = m.smoothing*rms + (1-m.smoothing)*m.level
	m.updateGate(m.level)
	return m.level
}

// Level returns the last smoothed loudness value.
func (m *LevelMeter) Level() float64 { return m.level }

// IsSpeech reports whether the gate currently considers the stream voiced.
// Hysteresis keeps it from flickering between states on breathy input.
func (m *LevelMeter) IsSpeech() bool { return m.inSpeech }

// Reset clears the smoothed level and the gate state.
func (m *LevelMeter) Reset() {
	m.level = 0
	m.inSpeech = false
	m.speechCount = 0
	m.silenceCount = 0
}

func (m *LevelMeter) updateGate(level float64) {
	if m.inSpeech {
		if level < m.silenceThreshold {
			m.silenceCount++
			m.speechCount = 0
			if m.silenceCount >= m.silenceFrames {
				m.inSpeech = false
				m.silenceCount = 0
			}
		} else {
			m.silenceCount = 0
		}
		return
	}

	if level >= m.speechThreshold {
		m.speechCount++
		m.silenceCount = 0
		if m.speechCount >= m.speechFrames {
			m.inSpeech = true
			m.speechCount = 0
		}
	} else {
		m.speechCount = 0
	}
}
