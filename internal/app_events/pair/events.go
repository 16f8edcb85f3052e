package pair

import (
	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	"github.com/rescp17/reactionTrainer/pkg/flash"
)

// --- App Events (from TUI to App) ---

// ScanSubmittedEvent carries what the user scanned: a pasted payload or the
// path of a QR code image.
type ScanSubmittedEvent struct {
	appevents.Event
	Input string
}

// ToggleScanModeEvent switches between showing the local QR code and
// scanning the other device's.
type ToggleScanModeEvent struct {
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

// SetPulseEvent sets how long a flash stays on.
type SetPulseEvent struct {
	appevents.Event
	Seconds float64
}

type SelectIconEvent struct {
	appevents.Event
	Icon flash.Icon
}

type StartFlashEvent struct {
	appevents.Event
}

type StopFlashEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = ScanSubmittedEvent{}
	_ appevents.AppEvent = ToggleScanModeEvent{}
	_ appevents.AppEvent = SetMinIntervalEvent{}
	_ appevents.AppEvent = SetMaxIntervalEvent{}
	_ appevents.AppEvent = SetPulseEvent{}
	_ appevents.AppEvent = SelectIconEvent{}
	_ appevents.AppEvent = StartFlashEvent{}
	_ appevents.AppEvent = StopFlashEvent{}
)

// --- UI Messages (from App to TUI) ---

// SnapshotMsg is the full session view after a change.
type SnapshotMsg struct {
	appevents.UIMessage
	Session app.Session
}
