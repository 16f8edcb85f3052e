package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	"github.com/rescp17/reactionTrainer/internal/style"
	"github.com/rescp17/reactionTrainer/internal/util"
	"github.com/rescp17/reactionTrainer/pkg/flash"
)

const (
	pulseStep  = 0.5
	flashWidth = 21
)

// settingsKeyMap edits the flash config. Both modes share it.
type settingsKeyMap struct {
	MinDown   key.Binding
	MinUp     key.Binding
	MaxDown   key.Binding
	MaxUp     key.Binding
	PulseDown key.Binding
	PulseUp   key.Binding
	Icon      key.Binding
}

var defaultSettingsKeys = settingsKeyMap{
	MinDown:   key.NewBinding(key.WithKeys("["), key.WithHelp("[/]", "min interval")),
	MinUp:     key.NewBinding(key.WithKeys("]")),
	MaxDown:   key.NewBinding(key.WithKeys("{"), key.WithHelp("{/}", "max interval")),
	MaxUp:     key.NewBinding(key.WithKeys("}")),
	PulseDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-/+", "flash duration")),
	PulseUp:   key.NewBinding(key.WithKeys("+", "=")),
	Icon:      key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "icon")),
}

func (k settingsKeyMap) bindings() []key.Binding {
	return []key.Binding{k.MinDown, k.MaxDown, k.PulseDown, k.Icon}
}

// settingsEvents builds the mode specific event for each edit.
type settingsEvents struct {
	min   func(secs float64) appevents.AppEvent
	max   func(secs float64) appevents.AppEvent
	pulse func(secs float64) appevents.AppEvent
	icon  func(icon flash.Icon) appevents.AppEvent
}

// event maps a key press to an edit of cfg. Out of range values are still
// sent so the app reports why they were rejected.
func (k settingsKeyMap) event(msg tea.KeyMsg, cfg flash.Config, ev settingsEvents) (appevents.AppEvent, bool) {
	switch {
	case key.Matches(msg, k.MinDown):
		return ev.min(cfg.MinIntervalSeconds - 1), true
	case key.Matches(msg, k.MinUp):
		return ev.min(cfg.MinIntervalSeconds + 1), true
	case key.Matches(msg, k.MaxDown):
		return ev.max(cfg.MaxIntervalSeconds - 1), true
	case key.Matches(msg, k.MaxUp):
		return ev.max(cfg.MaxIntervalSeconds + 1), true
	case key.Matches(msg, k.PulseDown):
		return ev.pulse(cfg.PulseSeconds - pulseStep), true
	case key.Matches(msg, k.PulseUp):
		return ev.pulse(cfg.PulseSeconds + pulseStep), true
	case key.Matches(msg, k.Icon):
		return ev.icon(cfg.Icon.Toggle()), true
	}
	return nil, false
}

func settingsView(cfg flash.Config) string {
	rows := []string{
		style.LabelStyle.Render("Min interval") + fmt.Sprintf("%gs", cfg.MinIntervalSeconds),
		style.LabelStyle.Render("Max interval") + fmt.Sprintf("%gs", cfg.MaxIntervalSeconds),
		style.LabelStyle.Render("Flash") + fmt.Sprintf("%gs", cfg.PulseSeconds),
		style.LabelStyle.Render("Icon") + string(cfg.Icon),
	}
	return strings.Join(rows, "\n")
}

func iconGlyph(icon flash.Icon) string {
	if icon == flash.IconPlayer {
		return "🏃"
	}
	return "⚽"
}

func directionGlyph(direction string) string {
	switch direction {
	case "left":
		return "<--"
	case "right":
		return "-->"
	}
	return ""
}

// flashView draws the stimulus frame, lit when on.
func flashView(on bool, content string) string {
	blank := strings.Repeat(" ", flashWidth)
	if !on {
		return style.FlashStyle.Render(strings.Join([]string{blank, blank, blank}, "\n"))
	}
	return style.FlashOnStyle.Render(strings.Join([]string{blank, util.Center(content, flashWidth), blank}, "\n"))
}
