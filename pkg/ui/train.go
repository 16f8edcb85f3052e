package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	trainerevents "github.com/rescp17/reactionTrainer/internal/app_events/trainer"
	"github.com/rescp17/reactionTrainer/internal/style"
	"github.com/rescp17/reactionTrainer/pkg/flash"
)

type trainKeyMap struct {
	settingsKeyMap
	Toggle key.Binding
	Speech key.Binding
	Quit   key.Binding
}

var defaultTrainKeys = trainKeyMap{
	settingsKeyMap: defaultSettingsKeys,
	Toggle:         key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop")),
	Speech:         key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "speech")),
	Quit:           key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}

func (k trainKeyMap) ShortHelp() []key.Binding {
	return append([]key.Binding{k.Toggle, k.Speech}, append(k.bindings(), k.Quit)...)
}

func (k trainKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type trainModel struct {
	training app.Training
	keys     trainKeyMap
}

func initTrainModel() trainModel {
	return trainModel{keys: defaultTrainKeys}
}

var trainSettingsEvents = settingsEvents{
	min:   func(s float64) appevents.AppEvent { return trainerevents.SetMinIntervalEvent{Seconds: s} },
	max:   func(s float64) appevents.AppEvent { return trainerevents.SetMaxIntervalEvent{Seconds: s} },
	pulse: func(s float64) appevents.AppEvent { return trainerevents.SetPulseEvent{Seconds: s} },
	icon:  func(i flash.Icon) appevents.AppEvent { return trainerevents.SelectIconEvent{Icon: i} },
}

func (m model) updateTrain(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case trainerevents.SnapshotMsg:
		m.train.training = msg.Training
		return m, m.listenForAppMessages()
	case tea.KeyMsg:
		t := m.train
		switch {
		case key.Matches(msg, t.keys.Quit):
			return m.quit()
		case key.Matches(msg, t.keys.Toggle):
			m.err = nil
			if t.training.Config.Playing {
				return m, m.sendEvent(trainerevents.StopEvent{})
			}
			return m, m.sendEvent(trainerevents.StartEvent{})
		case key.Matches(msg, t.keys.Speech):
			return m, m.sendEvent(trainerevents.ToggleSpeechEvent{})
		}
		if ev, ok := t.keys.event(msg, t.training.Config, trainSettingsEvents); ok {
			m.err = nil
			return m, m.sendEvent(ev)
		}
	}
	return m, nil
}

func (m model) trainView() string {
	t := m.train.training
	var b strings.Builder

	b.WriteString(style.TitleStyle.Render("Reaction Trainer") + "  " + style.HelpStyle.Render("individual") + "\n\n")

	content := iconGlyph(t.Config.Icon)
	switch t.Direction {
	case "left":
		content = directionGlyph(t.Direction) + " " + content
	case "right":
		content = content + " " + directionGlyph(t.Direction)
	}
	b.WriteString(flashView(t.FlashOn, content) + "\n\n")

	status := "stopped"
	if t.Config.Playing {
		status = "playing"
	}
	speech := "off"
	if t.Speech {
		speech = "on"
	}
	b.WriteString(fmt.Sprintf("%s  flashes: %d  speech: %s\n\n", style.HighlightFontStyle.Render(status), t.Flashes, speech))
	b.WriteString(settingsView(t.Config) + "\n")

	if t.Notice != "" && m.err == nil {
		b.WriteString("\n" + style.NoticeStyle.Render(t.Notice))
	}
	b.WriteString("\n" + m.help.View(m.train.keys))
	return b.String()
}
