package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorGreen     = lipgloss.Color("42")
	colorYellow    = lipgloss.Color("220")
	colorRed       = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	ErrorStyle  = lipgloss.NewStyle().Foreground(colorRed)
	NoticeStyle = lipgloss.NewStyle().Foreground(colorYellow)
	DocStyle    = lipgloss.NewStyle().Margin(1, 2)
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	HelpStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Pairing Styles ---
var (
	BaseStyle          = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorDarkGray)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
	ConnectedStyle     = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	DisconnectedStyle  = lipgloss.NewStyle().Foreground(colorDarkGray)
	LabelStyle         = lipgloss.NewStyle().Foreground(colorLightGray).Width(14)
	DisabledStyle      = lipgloss.NewStyle().Foreground(colorDarkGray).Strikethrough(true)
)

// --- Flash Styles ---
var (
	FlashStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDarkGray)
	FlashOnStyle = FlashStyle.BorderForeground(colorGreen).Foreground(colorGreen).Bold(true)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}
