package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	pairevents "github.com/rescp17/reactionTrainer/internal/app_events/pair"
	"github.com/rescp17/reactionTrainer/internal/style"
	"github.com/rescp17/reactionTrainer/pkg/flash"
	"github.com/rescp17/reactionTrainer/pkg/pairing"
	"github.com/rescp17/reactionTrainer/pkg/qr"
)

type pairKeyMap struct {
	settingsKeyMap
	ToggleScan key.Binding
	Submit     key.Binding
	Start      key.Binding
	Stop       key.Binding
	Quit       key.Binding
}

var defaultPairKeys = pairKeyMap{
	settingsKeyMap: defaultSettingsKeys,
	ToggleScan:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "show/scan QR")),
	Submit:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit scan")),
	Start:          key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
	Stop:           key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
	Quit:           key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}

// pairHelp adapts the key map to help.KeyMap for the current session.
type pairHelp struct {
	keys    pairKeyMap
	session app.Session
}

func (h pairHelp) ShortHelp() []key.Binding {
	if !h.session.FlashActive && h.session.ScanMode {
		return []key.Binding{h.keys.ToggleScan, h.keys.Submit, forceQuitKey}
	}
	var bindings []key.Binding
	if !h.session.FlashActive {
		bindings = append(bindings, h.keys.ToggleScan)
	}
	if h.session.Role != pairing.RoleFollower {
		if h.session.FlashActive {
			bindings = append(bindings, h.keys.Start, h.keys.Stop)
		}
		bindings = append(bindings, h.keys.bindings()...)
	}
	return append(bindings, h.keys.Quit)
}

func (h pairHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp()}
}

type pairModel struct {
	session app.Session
	spinner spinner.Model
	input   textinput.Model
	keys    pairKeyMap
	// qr caches the rendering of session.Payload.
	qr        string
	qrPayload string
	qrErr     error
}

func initPairModel() pairModel {
	ti := textinput.New()
	ti.Placeholder = "paste the other device's payload or an image path"
	ti.CharLimit = 8192
	ti.Width = 60

	return pairModel{
		spinner: style.NewSpinner(),
		input:   ti,
		keys:    defaultPairKeys,
	}
}

func (m *model) initPair() tea.Cmd {
	return m.pair.spinner.Tick
}

var pairSettingsEvents = settingsEvents{
	min:   func(s float64) appevents.AppEvent { return pairevents.SetMinIntervalEvent{Seconds: s} },
	max:   func(s float64) appevents.AppEvent { return pairevents.SetMaxIntervalEvent{Seconds: s} },
	pulse: func(s float64) appevents.AppEvent { return pairevents.SetPulseEvent{Seconds: s} },
	icon:  func(i flash.Icon) appevents.AppEvent { return pairevents.SelectIconEvent{Icon: i} },
}

func (m model) updatePair(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pairevents.SnapshotMsg:
		m.pair.applySession(msg.Session)
		return m, m.listenForAppMessages()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.pair.spinner, cmd = m.pair.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.updatePairKeys(msg)
	}
	var cmd tea.Cmd
	m.pair.input, cmd = m.pair.input.Update(msg)
	return m, cmd
}

func (m model) updatePairKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.pair
	if key.Matches(msg, p.keys.ToggleScan) && !p.session.FlashActive {
		return m, m.sendEvent(pairevents.ToggleScanModeEvent{})
	}

	if p.session.ScanMode && !p.session.FlashActive {
		if key.Matches(msg, p.keys.Submit) {
			input := strings.TrimSpace(p.input.Value())
			if input == "" {
				return m, nil
			}
			p.input.Reset()
			m.err = nil
			return m, m.sendEvent(pairevents.ScanSubmittedEvent{Input: input})
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return m, cmd
	}

	if key.Matches(msg, p.keys.Quit) {
		return m.quit()
	}
	if p.session.Role == pairing.RoleFollower {
		return m, nil
	}

	switch {
	case key.Matches(msg, p.keys.Start):
		m.err = nil
		return m, m.sendEvent(pairevents.StartFlashEvent{})
	case key.Matches(msg, p.keys.Stop):
		m.err = nil
		return m, m.sendEvent(pairevents.StopFlashEvent{})
	}
	if ev, ok := p.keys.event(msg, p.session.Flash.Config, pairSettingsEvents); ok {
		m.err = nil
		return m, m.sendEvent(ev)
	}
	return m, nil
}

func (p *pairModel) applySession(s app.Session) {
	p.session = s
	if s.ScanMode && !s.FlashActive {
		p.input.Focus()
	} else {
		p.input.Blur()
	}
	if s.Payload != p.qrPayload {
		p.qrPayload = s.Payload
		p.qr, p.qrErr = "", nil
		if s.Payload != "" {
			p.qr, p.qrErr = qr.Render(s.Payload)
		}
	}
}

func (m model) pairView() string {
	p := m.pair
	s := p.session
	var b strings.Builder

	b.WriteString(style.TitleStyle.Render("Reaction Trainer") + "\n\n")
	b.WriteString(p.statusLine() + "\n\n")

	switch {
	case s.FlashActive:
		b.WriteString(p.flashPanel())
	case s.ScanMode:
		b.WriteString("Scan the other device's code:\n")
		b.WriteString(p.input.View() + "\n")
	case p.qrErr != nil:
		b.WriteString(style.ErrorStyle.Render(p.qrErr.Error()) + "\n")
	case p.qr == "":
		b.WriteString(fmt.Sprintf("%s Creating connection offer...\n", p.spinner.View()))
	default:
		b.WriteString(p.qr)
		if s.Role == pairing.RoleFollower {
			b.WriteString("Let the leader scan this answer.\n")
		} else {
			b.WriteString("Scan this code with the other device, then scan its answer.\n\n")
			b.WriteString(settingsView(s.Flash.Config) + "\n")
		}
	}

	if s.Notice != "" && m.err == nil {
		b.WriteString("\n" + style.NoticeStyle.Render(s.Notice))
	}
	b.WriteString("\n" + m.help.View(pairHelp{keys: p.keys, session: s}))
	return b.String()
}

func (p pairModel) statusLine() string {
	s := p.session
	conn := style.DisconnectedStyle.Render("not connected")
	if s.Connected {
		conn = style.ConnectedStyle.Render("connected")
	}
	return fmt.Sprintf("%s  role: %s  state: %s  candidates: %d",
		conn,
		style.HighlightFontStyle.Render(s.Role.String()),
		s.State.String(),
		s.Candidates,
	)
}

func (p pairModel) flashPanel() string {
	s := p.session
	f := s.Flash
	var b strings.Builder

	b.WriteString(flashView(f.FlashOn, iconGlyph(f.Config.Icon)) + "\n\n")

	if s.Role != pairing.RoleLeader {
		status := "waiting for the leader"
		if f.Config.Playing {
			status = "playing"
		}
		b.WriteString(fmt.Sprintf("Session %s. Start on the other device.\n", status))
		return b.String()
	}

	start := "[s] start"
	if !s.CanControlFlash() || f.Config.Playing {
		start = style.DisabledStyle.Render(start)
	}
	stop := "[x] stop"
	if !f.Config.Playing {
		stop = style.DisabledStyle.Render(stop)
	}
	b.WriteString(start + "  " + stop + "\n\n")
	b.WriteString(settingsView(f.Config) + "\n")
	return b.String()
}
