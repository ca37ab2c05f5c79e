package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/bawa-mj/vanya/internal/interaction"
	"github.com/bawa-mj/vanya/internal/transcript"
)

// consoleTurns is how many of the latest transcript turns the console shows.
const consoleTurns = 6

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	modeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	verseStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("180"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type stateMsg interaction.State

type intentErrMsg struct{ err error }

// consoleModel renders machine snapshots and turns key presses into intents.
type consoleModel struct {
	ctx     context.Context
	machine *interaction.Machine
	state   interaction.State
	err     error
	width   int
}

// runConsole drives m from the terminal until the user quits or ctx ends.
func runConsole(ctx context.Context, m *interaction.Machine) error {
	model := consoleModel{ctx: ctx, machine: m, state: m.State(), width: 80}
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	states, cancel := m.Subscribe()
	defer cancel()
	go func() {
		for st := range states {
			p.Send(stateMsg(st))
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func (c consoleModel) Init() tea.Cmd { return nil }

func (c consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		c.state = interaction.State(msg)
		c.err = nil
	case intentErrMsg:
		c.err = msg.err
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			c.width = msg.Width
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "m", " ":
			return c, c.intent(c.machine.ToggleMic)
		case "l":
			return c, c.intent(c.machine.ToggleLocale)
		case "d":
			return c, c.intent(c.machine.DismissNotice)
		case "q", "ctrl+c", "esc":
			return c, tea.Quit
		}
	}
	return c, nil
}

func (c consoleModel) intent(apply func(context.Context) error) tea.Cmd {
	ctx := c.ctx
	return func() tea.Msg {
		if err := apply(ctx); err != nil {
			return intentErrMsg{err}
		}
		return nil
	}
}

func (c consoleModel) View() string {
	var b strings.Builder
	st := c.state

	fmt.Fprintf(&b, "%s  %s  [%s]\n\n", titleStyle.Render("Vanya"), modeStyle.Render(st.Mode.String()), st.Locale)

	if len(st.Turns) == 0 {
		b.WriteString(st.Welcome + "\n")
	}
	turns := st.Turns
	if len(turns) > consoleTurns {
		turns = turns[len(turns)-consoleTurns:]
	}
	for _, t := range turns {
		b.WriteString(renderTurn(t, c.width))
	}

	if st.NoticeOpen {
		b.WriteString("\n" + noticeStyle.Render(st.Notice) + "\n")
	}
	if st.Error != "" {
		b.WriteString("\n" + errorStyle.Render(st.Error) + "\n")
	}
	if c.err != nil {
		b.WriteString("\n" + errorStyle.Render(c.err.Error()) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render(fmt.Sprintf("m mic · l %s · d dismiss · q quit", st.Label)) + "\n")
	return b.String()
}

func renderTurn(t transcript.Turn, width int) string {
	if t.Speaker == transcript.User {
		return userStyle.Render(wordwrap.String("> "+t.Text, width)) + "\n"
	}
	return verseStyle.Render(wordwrap.String(t.Reply.Shloka, width)) + "\n" +
		wordwrap.String(t.Reply.Meaning, width) + "\n" +
		wordwrap.String(t.Reply.Guidance, width) + "\n\n"
}
