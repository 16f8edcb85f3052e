package trainer

import (
	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	"github.com/rescp17/reactionTrainer/pkg/flash"
)

// --- App Events (from TUI to App) ---

type StartEvent struct {
	appevents.Event
}

type StopEvent struct {
	appevents.Event
}

type SetMinIntervalEvent struct {
	appevents.Event
	Seconds float64
}

type SetMaxIntervalEvent struct {
	appevents.Event
	Seconds float64
}

type SetPulseEvent struct {
	appevents.Event
	Seconds float64
}

type SelectIconEvent struct {
	appevents.Event
	Icon flash.Icon
}

// ToggleSpeechEvent turns the spoken direction cue on or off.
type ToggleSpeechEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = StartEvent{}
	_ appevents.AppEvent = StopEvent{}
	_ appevents.AppEvent = SetMinIntervalEvent{}
	_ appevents.AppEvent = SetMaxIntervalEvent{}
	_ appevents.AppEvent = SetPulseEvent{}
	_ appevents.AppEvent = SelectIconEvent{}
	_ appevents.AppEvent = ToggleSpeechEvent{}
)

// --- UI Messages (from App to TUI) ---

// SnapshotMsg is the full training view after a change.
type SnapshotMsg struct {
	appevents.UIMessage
	Training app.Training
}
