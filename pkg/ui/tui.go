package ui

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	"github.com/rescp17/reactionTrainer/internal/style"
)

type Mode int

const (
	None Mode = iota
	Pair
	Train
)

// appDoneMsg is sent when the controller's Run returns.
type appDoneMsg struct {
	err error
}

type model struct {
	mode          Mode
	appController AppController
	pair          pairModel
	train         trainModel
	help          help.Model

	width    int
	err      error
	quitting bool
	appDone  bool
}

// InitialModel builds the root model for mode, driving controller.
func InitialModel(m Mode, controller AppController) model {
	var p pairModel
	var t trainModel
	switch m {
	case Pair:
		p = initPairModel()
	case Train:
		t = initTrainModel()
	}
	return model{
		mode:          m,
		appController: controller,
		pair:          p,
		train:         t,
		help:          help.New(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.runApp(), m.listenForAppMessages()}
	if m.mode == Pair {
		cmds = append(cmds, m.initPair())
	}
	return tea.Batch(cmds...)
}

// runApp runs the controller for the lifetime of the program.
func (m model) runApp() tea.Cmd {
	controller := m.appController
	return func() tea.Msg {
		return appDoneMsg{err: controller.Run(context.Background())}
	}
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m model) listenForAppMessages() tea.Cmd {
	messages := m.appController.UIMessages()
	return func() tea.Msg {
		return <-messages
	}
}

// sendEvent hands ev to the controller without blocking the update loop.
func (m model) sendEvent(ev appevents.AppEvent) tea.Cmd {
	if m.appDone {
		return nil
	}
	events := m.appController.AppEvents()
	return func() tea.Msg {
		events <- ev
		return nil
	}
}

func (m model) quit() (tea.Model, tea.Cmd) {
	if m.appDone {
		return m, tea.Quit
	}
	m.quitting = true
	return m, m.sendEvent(appevents.QuitEvent{})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case appDoneMsg:
		m.appDone = true
		if msg.err != nil {
			slog.Error("App stopped", "error", msg.err)
			m.err = msg.err
		}
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	case appevents.AppClosedMsg:
		return m, tea.Quit
	case appevents.AppErrorMsg:
		m.err = msg.Err
		return m, m.listenForAppMessages()
	case tea.KeyMsg:
		if key.Matches(msg, forceQuitKey) {
			return m.quit()
		}
	}

	switch m.mode {
	case Pair:
		return m.updatePair(msg)
	case Train:
		return m.updateTrain(msg)
	}
	return m, nil
}

func (m model) View() string {
	var s string
	switch m.mode {
	case Pair:
		s = m.pairView()
	case Train:
		s = m.trainView()
	default:
		return ""
	}
	if m.err != nil {
		s += "\n" + style.ErrorStyle.Render(m.err.Error())
	}
	if m.quitting {
		s += "\n" + style.HelpStyle.Render("Closing...")
	}
	return style.DocStyle.Render(s)
}

var forceQuitKey = key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
