package appevents

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// It uses an unexported method so that only types embedding Event can satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event is a struct that can be embedded in other event types to satisfy the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// AppUIMessage is a marker interface for messages sent from the App's logic controller to the TUI.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is a base struct that can be embedded in other types to implement the AppUIMessage interface.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// --- App Events (from TUI to App) ---

// QuitEvent ends the session and releases everything it holds.
type QuitEvent struct {
	Event
}

// --- UI Messages (from App to TUI) ---

// AppErrorMsg reports an error the user should see on the status line.
type AppErrorMsg struct {
	UIMessage
	Err error
}

// AppClosedMsg is the last message an App sends.
type AppClosedMsg struct {
	UIMessage
}

var (
	_ AppEvent     = QuitEvent{}
	_ AppUIMessage = AppErrorMsg{}
	_ AppUIMessage = AppClosedMsg{}
)
