// Command talkmate runs a spoken conversation practice session in the
// terminal: microphone in, transcription and reply generation in the cloud,
// synthesized speech out.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	engine "github.com/talkmate/talkmate-core/core"
	"github.com/talkmate/talkmate-core/core/audio/miniaudio"
	"github.com/talkmate/talkmate-core/core/audio/portaudio"
	"github.com/talkmate/talkmate-core/core/llms/groq"
	sttdeepgram "github.com/talkmate/talkmate-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/talkmate/talkmate-core/core/texttospeech/deepgram"
	"github.com/talkmate/talkmate-core/tui"
)

const captureBufferSize = 4096

func main() {
	topic := flag.String("topic", "", "practice topic to steer the conversation toward")
	flag.Parse()

	audioInput, err := portaudio.NewClient(captureBufferSize)
	if err != nil {
		log.Fatalf("Failed to open microphone: %v", err)
	}

	audioOutput, err := miniaudio.NewClient()
	if err != nil {
		log.Fatalf("Failed to open playback device: %v", err)
	}
	defer audioOutput.Close()

	synthesisClient, err := ttsdeepgram.NewSynthesisClient(ttsdeepgram.VoiceThalia)
	if err != nil {
		log.Fatalf("Failed to create synthesis client: %v", err)
	}

	llmClient, err := groq.NewClient()
	if err != nil {
		log.Fatalf("Failed to create language model client: %v", err)
	}

	var program *tea.Program

	conversationEngine := engine.NewEngine(
		engine.WithAudioInput(audioInput),
		engine.WithAudioOutput(audioOutput),
		engine.WithSpeechToTextClient(sttdeepgram.NewTranscriptionClient()),
		engine.WithTextToSpeechClient(synthesisClient),
		engine.WithLLMClient(llmClient),
		engine.WithTopic(*topic),
		engine.WithGreeting(sinceLastSession()),
		engine.WithStateCallback(func(state engine.State) {
			program.Send(tui.StateMsg(state))
		}),
		engine.WithTurnCallback(func(turn engine.Turn) {
			program.Send(tui.TurnMsg(turn))
		}),
		engine.WithPendingTranscriptCallback(func(transcript string) {
			program.Send(tui.PendingTranscriptMsg(transcript))
		}),
		engine.WithLevelCallback(func(level float64) {
			program.Send(tui.LevelMsg(level))
		}),
	)

	program = tea.NewProgram(
		tui.New(*topic, conversationEngine.CancelTurn),
		tea.WithAltScreen(),
	)

	if err := conversationEngine.StartSession(context.Background()); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if _, err := program.Run(); err != nil {
		log.Printf("TUI exited with error: %v", err)
	}

	conversationEngine.StopSession()
	recordSessionEnd()
}

func lastSessionPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "talkmate", "last_session"), nil
}

// sinceLastSession reports how long ago the previous session ended, or zero
// when there is no record.
func sinceLastSession() time.Duration {
	path, err := lastSessionPath()
	if err != nil {
		return 0
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return time.Since(info.ModTime())
}

func recordSessionEnd() {
	path, err := lastSessionPath()
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		log.Printf("Failed to record session end: %v", err)
	}
}
