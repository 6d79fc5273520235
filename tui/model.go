// Package tui renders the conversation as a terminal UI: the live state
// badge, the turn history, the in-flight transcript and a coarse microphone
// level bar.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	engine "github.com/talkmate/talkmate-core/core"
)

// Engine callbacks are forwarded into the program as these messages.
type (
	StateMsg             engine.State
	TurnMsg              engine.Turn
	PendingTranscriptMsg string
	LevelMsg             float64
)

const maxVisibleTurns = 12

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	pendingStyle = lipgloss.NewStyle().Italic(true).Faint(true)

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))

	stateBadgeStyles = map[engine.State]lipgloss.Style{
		engine.StateIdle:      lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("240")).Foreground(lipgloss.Color("255")),
		engine.StateListening: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("34")).Foreground(lipgloss.Color("255")),
		engine.StateThinking:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("178")).Foreground(lipgloss.Color("232")),
		engine.StateSpeaking:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")),
		engine.StateError:     lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("160")).Foreground(lipgloss.Color("255")),
	}
)

type Model struct {
	topic      string
	cancelTurn func()

	state   engine.State
	turns   []engine.Turn
	pending string
	level   float64

	spinner spinner.Model

	width    int
	height   int
	quitting bool
}

// New builds the model. cancelTurn is invoked when the user interrupts the
// assistant from the keyboard; it may be nil.
func New(topic string, cancelTurn func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		topic:      topic,
		cancelTurn: cancelTurn,
		state:      engine.StateIdle,
		spinner:    s,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if m.cancelTurn != nil {
				m.cancelTurn()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case StateMsg:
		m.state = engine.State(msg)

	case TurnMsg:
		m.turns = append(m.turns, engine.Turn(msg))
		if len(m.turns) > maxVisibleTurns {
			m.turns = m.turns[len(m.turns)-maxVisibleTurns:]
		}

	case PendingTranscriptMsg:
		m.pending = string(msg)

	case LevelMsg:
		m.level = float64(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Thanks for practicing. See you next time!\n"
	}

	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder

	title := "TALKMATE"
	if m.topic != "" {
		title += " // " + m.topic
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("  ")
	b.WriteString(m.renderStateBadge())
	b.WriteString("\n")
	b.WriteString(m.renderLevelBar(width))
	b.WriteString("\n\n")

	for _, turn := range m.turns {
		label := userLabelStyle.Render("You")
		if turn.Role == engine.TurnRoleAssistant {
			label = assistantLabelStyle.Render("Partner")
		}
		b.WriteString(label)
		b.WriteString("  ")
		b.WriteString(wordwrap.String(turn.Content, width-10))
		b.WriteString("\n")
	}

	if m.pending != "" {
		b.WriteString(pendingStyle.Render(wordwrap.String(m.pending+" …", width-2)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("c=interrupt  |  q/Ctrl+C=quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderStateBadge() string {
	badge := stateBadgeStyles[m.state].Render(m.state.String())
	if m.state == engine.StateThinking {
		badge += " " + m.spinner.View()
	}
	return badge
}

// renderLevelBar draws the microphone loudness as a fixed-width block bar.
func (m Model) renderLevelBar(width int) string {
	barWidth := min(width-8, 32)
	if barWidth <= 0 {
		return ""
	}

	filled := int(m.level * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	return fmt.Sprintf("mic [%s%s]",
		strings.Repeat("█", filled),
		strings.Repeat("░", barWidth-filled))
}
