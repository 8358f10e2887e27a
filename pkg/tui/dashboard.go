package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/realtime"
)

var (
	scanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const maxFeedLines = 500

// EventMsg carries one decoded stream envelope into the model.
type EventMsg struct {
	Kind    string
	Summary string
	At      time.Time
}

// StateMsg carries a channel state transition into the model.
type StateMsg struct {
	State realtime.State
}

type feedLine struct {
	kind    string
	summary string
	at      time.Time
}

type Model struct {
	feed   []feedLine
	state  realtime.State
	alerts int
	scans  int
	paused bool
	width  int
	height int
}

func NewModel() Model {
	return Model{state: realtime.StateDisconnected}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case StateMsg:
		m.state = msg.State

	case EventMsg:
		switch msg.Kind {
		case events.KindTagScanned:
			m.scans++
		case events.KindTheftAlert:
			m.alerts++
		}
		if m.paused {
			return m, nil
		}
		m.feed = append(m.feed, feedLine{kind: msg.Kind, summary: msg.Summary, at: msg.At})
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	visible := m.height - 4
	if visible < 1 {
		visible = 1
	}
	feed := m.feed
	if len(feed) > visible {
		feed = feed[len(feed)-visible:]
	}
	for _, line := range feed {
		b.WriteString(dimStyle.Render(line.at.Format("15:04:05")))
		b.WriteString(" ")
		switch line.kind {
		case events.KindTheftAlert:
			b.WriteString(alertStyle.Render("ALERT"))
		case events.KindTagScanned:
			b.WriteString(scanStyle.Render("scan "))
		case events.KindTagLinked:
			b.WriteString(linkStyle.Render("link "))
		default:
			b.WriteString(dimStyle.Render(line.kind))
		}
		b.WriteString(" ")
		b.WriteString(line.summary)
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q quit · p pause"))
	if m.paused {
		b.WriteString(pendingStyle.Render("  PAUSED"))
	}

	return b.String()
}

func (m Model) statusLine() string {
	var state string
	switch m.state {
	case realtime.StateConnected:
		state = upStyle.Render("● connected")
	case realtime.StateConnecting:
		state = pendingStyle.Render("◌ connecting")
	default:
		state = downStyle.Render("○ " + m.state.String())
	}
	return fmt.Sprintf("%s  %s  %s",
		state,
		dimStyle.Render(fmt.Sprintf("scans %d", m.scans)),
		dimStyle.Render(fmt.Sprintf("alerts %d", m.alerts)),
	)
}

// Run attaches a dashboard to the channel and blocks until the user
// quits. The caller owns connecting and disconnecting the channel.
func Run(ch *realtime.Channel) error {
	p := tea.NewProgram(NewModel(), tea.WithAltScreen())

	unsub := ch.Subscribe(func(env events.Envelope) {
		p.Send(envelopeMsg(env))
	})
	defer unsub()

	unsubState := ch.WatchState(func(change realtime.StateChange) {
		p.Send(StateMsg{State: change.To})
	})
	defer unsubState()

	_, err := p.Run()
	return err
}

func envelopeMsg(env events.Envelope) EventMsg {
	msg := EventMsg{Kind: env.Type, At: time.Now()}

	switch env.Type {
	case events.KindTagScanned:
		var scan events.TagScan
		if err := env.Decode(&scan); err == nil {
			msg.Summary = fmt.Sprintf("%s at %s", scan.EPC, scan.GateID)
			if !scan.At.IsZero() {
				msg.At = scan.At
			}
		}
	case events.KindTheftAlert:
		var alert events.TheftAlert
		if err := env.Decode(&alert); err == nil {
			msg.Summary = fmt.Sprintf("%s at %s %s", alert.EPC, alert.GateID, alert.Message)
			if !alert.At.IsZero() {
				msg.At = alert.At
			}
		}
	case events.KindTagLinked:
		var link events.TagLinked
		if err := env.Decode(&link); err == nil {
			msg.Summary = fmt.Sprintf("%s -> %s", link.EPC, link.Barcode)
		}
	}

	return msg
}
