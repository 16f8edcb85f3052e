package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	trainerevents "github.com/rescp17/reactionTrainer/internal/app_events/trainer"
)

// App is the application logic controller for a solo training session.
type App struct {
	logger  *slog.Logger
	trainer *Trainer

	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
	changed    chan struct{}

	state     *app.StateManager[app.Training]
	closeOnce sync.Once
}

// NewApp creates a training session. An invalid cfg falls back to the
// defaults.
func NewApp(cfg Config, opts Options) *App {
	if err := cfg.Validate(); err != nil {
		slog.Warn("Using default trainer config", "error", err)
		speech := cfg.Speech
		cfg = DefaultConfig()
		cfg.Speech = speech
	}
	a := &App{
		logger:     slog.Default().With("session", uuid.New().String()),
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
		changed:    make(chan struct{}, 1),
		state:      app.NewStateManager(app.Training{}),
	}
	onChange := opts.OnChange
	opts.OnChange = func(s State) {
		if onChange != nil {
			onChange(s)
		}
		select {
		case a.changed <- struct{}{}:
		default:
		}
	}
	a.trainer = New(cfg, opts)
	a.project()
	return a
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

func (a *App) Training() app.Training {
	return a.state.Snapshot()
}

// Pending counts the timers the session still owns.
func (a *App) Pending() int {
	return a.trainer.Pending()
}

// Run blocks until a QuitEvent arrives or ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop(ctx)
	})
	return g.Wait()
}

func (a *App) loop(ctx context.Context) error {
	defer a.close()

	a.publish(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.changed:
			a.publish(ctx)
		case event := <-a.appEvents:
			if _, quit := event.(appevents.QuitEvent); quit {
				a.close()
				a.send(ctx, appevents.AppClosedMsg{})
				return nil
			}
			a.handleAppEvent(ctx, event)
			a.publish(ctx)
		}
	}
}

func (a *App) handleAppEvent(ctx context.Context, event appevents.AppEvent) {
	var err error
	switch e := event.(type) {
	case trainerevents.StartEvent:
		err = a.trainer.Start()
	case trainerevents.StopEvent:
		a.trainer.Stop()
	case trainerevents.SetMinIntervalEvent:
		err = a.trainer.SetMinInterval(e.Seconds)
	case trainerevents.SetMaxIntervalEvent:
		err = a.trainer.SetMaxInterval(e.Seconds)
	case trainerevents.SetPulseEvent:
		err = a.trainer.SetPulse(e.Seconds)
	case trainerevents.SelectIconEvent:
		err = a.trainer.SetIcon(e.Icon)
	case trainerevents.ToggleSpeechEvent:
		on := a.trainer.ToggleSpeech()
		a.logger.Info("Speech toggled", "enabled", on)
	default:
		a.logger.Warn("Unhandled app event", "event", fmt.Sprintf("%T", event))
	}
	if err != nil {
		a.sendAndLogError(ctx, "Request rejected", err)
	}
}

func (a *App) close() {
	a.closeOnce.Do(func() {
		a.trainer.Close()
		a.logger.Info("Training session closed")
	})
}

// project copies the trainer state into the session view. Only the loop
// calls it after construction, so views never go backwards.
func (a *App) project() app.Training {
	s := a.trainer.Snapshot()
	return a.state.Update(func(t *app.Training) {
		t.Config = s.Config.Flash
		t.Speech = s.Config.Speech
		t.FlashOn = s.FlashOn
		t.Direction = string(s.Direction)
		t.Flashes = s.Flashes
	})
}

func (a *App) publish(ctx context.Context) {
	a.send(ctx, trainerevents.SnapshotMsg{Training: a.project()})
}

func (a *App) send(ctx context.Context, msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	case <-ctx.Done():
	}
}

func (a *App) sendAndLogError(ctx context.Context, baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.state.Update(func(t *app.Training) { t.Notice = err.Error() })
	a.send(ctx, appevents.AppErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
