package pair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	pairevents "github.com/rescp17/reactionTrainer/internal/app_events/pair"
	"github.com/rescp17/reactionTrainer/pkg/flash"
	"github.com/rescp17/reactionTrainer/pkg/pairing"
	"github.com/rescp17/reactionTrainer/pkg/qr"
	"github.com/rescp17/reactionTrainer/pkg/signaling"
	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

// Options configures an App. Zero values pick the real network and clock.
type Options struct {
	WebRTC  rtc.Config
	Flash   flash.Config
	NewPeer func() (Peer, error)
	// FlashOptions are passed to the flash controller once connected.
	FlashOptions flash.Options
}

// App is the application logic controller for one pairing session. A single
// loop goroutine owns the pairing machine; pion callbacks and finished
// negotiation steps are posted back into it.
type App struct {
	logger    *slog.Logger
	newPeer   func() (Peer, error)
	flashOpts flash.Options

	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
	internal   chan pairing.Event
	inbound    chan Channel
	refresh    chan struct{}
	done       chan struct{}

	state *app.StateManager[app.Session]

	// Owned by the loop goroutine.
	machine   pairing.Machine
	peer      Peer
	local     Channel
	remote    Channel
	listening bool
	flashCfg  flash.Config
	ctrl      *flash.Controller

	negCtx    context.Context
	negCancel context.CancelFunc
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// NewApp creates a new pairing session.
func NewApp(opts Options) *App {
	if opts.NewPeer == nil {
		opts.NewPeer = NewPeer(opts.WebRTC)
	}
	cfg := opts.Flash
	if cfg.Validate() != nil {
		cfg = flash.DefaultConfig()
	}
	id := uuid.New().String()
	return &App{
		logger:     slog.Default().With("session", id),
		newPeer:    opts.NewPeer,
		flashOpts:  opts.FlashOptions,
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
		internal:   make(chan pairing.Event, 32),
		inbound:    make(chan Channel, 2),
		refresh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		state:      app.NewStateManager(app.Session{ID: id, Flash: flash.State{Config: cfg}}),
		machine:    pairing.New(),
		flashCfg:   cfg,
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Session returns the current view of the session.
func (a *App) Session() app.Session {
	return a.state.Snapshot()
}

// Run starts the session and blocks until it is closed by a QuitEvent or
// by ctx.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop(ctx)
	})
	return g.Wait()
}

func (a *App) loop(ctx context.Context) error {
	peer, err := a.newPeer()
	if err != nil {
		a.sendAndLogError(ctx, "Failed to create peer connection", err)
		a.closeOnce.Do(func() { close(a.done) })
		return err
	}
	a.peer = peer
	a.negCtx, a.negCancel = context.WithCancel(ctx)
	a.listen(peer)

	a.dispatch(ctx, pairing.Mount{})
	for {
		select {
		case <-ctx.Done():
			a.dispatch(ctx, pairing.Unmount{})
			return nil
		case ev := <-a.internal:
			a.dispatch(ctx, ev)
		case ch := <-a.inbound:
			a.handleInbound(ch)
			a.publish(ctx)
		case <-a.refresh:
			a.publish(ctx)
		case event := <-a.appEvents:
			if _, quit := event.(appevents.QuitEvent); quit {
				a.dispatch(ctx, pairing.Unmount{})
				a.send(ctx, appevents.AppClosedMsg{})
				return nil
			}
			a.handleAppEvent(ctx, event)
		}
	}
}

// listen forwards peer callbacks into the loop.
func (a *App) listen(peer Peer) {
	peer.OnCandidate(func(c webrtc.ICECandidateInit, snap rtc.Snapshot) {
		a.post(pairing.CandidateGathered{Candidate: c, Snapshot: snap})
	})
	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		a.logger.Info("Peer connection state changed", "state", state.String())
		a.post(pairing.ConnectionStateChanged{Connected: state == webrtc.PeerConnectionStateConnected})
	})
	peer.OnChannel(func(ch Channel) {
		select {
		case a.inbound <- ch:
		case <-a.done:
			_ = ch.Close()
		}
	})
}

func (a *App) post(ev pairing.Event) {
	select {
	case a.internal <- ev:
	case <-a.done:
	}
}

func (a *App) dispatch(ctx context.Context, ev pairing.Event) {
	next, effects := pairing.Transition(a.machine, ev)
	a.machine = next
	for _, effect := range effects {
		a.apply(ctx, effect)
	}
	a.publish(ctx)
}

func (a *App) apply(ctx context.Context, effect pairing.Effect) {
	switch e := effect.(type) {
	case pairing.OpenChannel:
		ch, err := a.peer.OpenChannel(e.Label)
		if err != nil {
			a.logger.Error("Failed to open data channel", "label", e.Label, "error", err)
			return
		}
		a.local = ch
	case pairing.CreateOffer:
		a.goWork(func() {
			snap, err := a.peer.CreateLocalOffer()
			if err != nil {
				a.post(pairing.LocalOfferFailed{Err: err})
				return
			}
			a.post(pairing.LocalOfferReady{Snapshot: snap})
		})
	case pairing.AcceptRemote:
		negCtx := a.negCtx
		a.goWork(func() {
			local, err := a.peer.AcceptRemote(negCtx, e.Description)
			if err != nil {
				a.post(pairing.NegotiationFailed{Err: err})
				return
			}
			a.post(pairing.RemoteAccepted{Role: e.Role, Local: local})
		})
	case pairing.ListenInbound:
		a.listening = true
	case pairing.PublishLocal:
		a.publishLocal(e)
	case pairing.ShowLocal:
		a.state.Update(func(s *app.Session) { s.ScanMode = false })
	case pairing.ActivateFlash:
		a.activateFlash(e.Role)
	case pairing.Log:
		a.log(ctx, e)
	case pairing.Teardown:
		a.teardown()
	}
}

func (a *App) goWork(fn func()) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn()
	}()
}

func (a *App) publishLocal(e pairing.PublishLocal) {
	text, err := signaling.Encode(e.Description, e.Candidates)
	if err != nil && len(e.Candidates) > 0 {
		a.logger.Warn("Failed to fold candidates, publishing description as is", "error", err)
		text, err = signaling.Encode(e.Description, nil)
	}
	if err != nil {
		a.logger.Error("Failed to encode local description", "error", err)
		return
	}
	notice := ""
	if len(text) > signaling.MaxPayloadBytes {
		notice = qr.ErrPayloadTooLarge.Error()
		a.logger.Warn("Local payload too large", "bytes", len(text), "candidates", len(e.Candidates))
	}
	a.state.Update(func(s *app.Session) {
		if e.Generation <= s.PayloadGeneration {
			return
		}
		s.Payload = text
		s.PayloadGeneration = e.Generation
		if notice != "" {
			s.Notice = notice
		}
	})
	a.logger.Debug("Published local description", "type", e.Description.Type.String(), "generation", e.Generation)
}

func (a *App) handleInbound(ch Channel) {
	if !a.listening || a.remote != nil {
		a.logger.Debug("Ignoring inbound data channel", "label", ch.Label())
		_ = ch.Close()
		return
	}
	a.logger.Info("Inbound data channel", "label", ch.Label())
	a.remote = ch
	if a.ctrl != nil {
		a.attachFollower()
	}
}

func (a *App) activateFlash(role pairing.Role) {
	if a.ctrl != nil {
		return
	}
	opts := a.flashOpts
	opts.OnChange = func(s flash.State) {
		a.state.Update(func(sess *app.Session) { sess.Flash = s })
		select {
		case a.refresh <- struct{}{}:
		default:
		}
	}

	switch role {
	case pairing.RoleLeader:
		a.ctrl = flash.NewController(flash.RoleLeader, a.flashCfg, opts)
		if a.local != nil {
			a.ctrl.Attach(a.local)
		}
	case pairing.RoleFollower:
		a.ctrl = flash.NewController(flash.RoleFollower, a.flashCfg, opts)
		if a.remote != nil {
			a.attachFollower()
		}
	default:
		a.logger.Error("Cannot start flash protocol without a role")
		return
	}
	a.state.Update(func(s *app.Session) {
		s.FlashActive = true
		s.Flash = a.ctrl.Snapshot()
	})
	a.logger.Info("Flash protocol active", "role", role.String())
}

func (a *App) attachFollower() {
	ctrl, logger := a.ctrl, a.logger
	a.remote.OnMessage(func(data []byte) {
		if err := ctrl.HandleMessage(data); err != nil {
			logger.Warn("Dropping flash message", "error", err)
		}
	})
	ctrl.Attach(a.remote)
}

func (a *App) log(ctx context.Context, e pairing.Log) {
	attrs := append([]any(nil), e.Attrs...)
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	a.logger.Log(ctx, e.Level, e.Msg, attrs...)
	if e.Level >= slog.LevelWarn {
		notice := e.Msg
		if e.Err != nil {
			notice = fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		a.state.Update(func(s *app.Session) { s.Notice = notice })
	}
}

// teardown stops the flash loop, detaches every listener and closes the
// channels and the connection. It runs once; errors are only logged.
func (a *App) teardown() {
	a.closeOnce.Do(func() {
		close(a.done)
		if a.negCancel != nil {
			a.negCancel()
		}
		if a.ctrl != nil {
			a.ctrl.Close()
		}

		var errs []error
		if a.remote != nil {
			a.remote.OnMessage(func([]byte) {})
			errs = append(errs, a.remote.Close())
		}
		if a.local != nil {
			errs = append(errs, a.local.Close())
		}
		if a.peer != nil {
			errs = append(errs, a.peer.Close())
		}
		a.workers.Wait()
		// Channels that arrived after the loop stopped reading.
		for drained := false; !drained; {
			select {
			case ch := <-a.inbound:
				errs = append(errs, ch.Close())
			default:
				drained = true
			}
		}
		if err := errors.Join(errs...); err != nil {
			a.logger.Debug("Teardown errors", "error", err)
		}
		a.logger.Info("Pairing session closed")
	})
}

func (a *App) handleAppEvent(ctx context.Context, event appevents.AppEvent) {
	var err error
	switch e := event.(type) {
	case pairevents.ScanSubmittedEvent:
		var text string
		text, err = qr.Scan(e.Input)
		if err == nil {
			a.dispatch(ctx, pairing.Scanned{Text: text})
		}
	case pairevents.ToggleScanModeEvent:
		a.state.Update(func(s *app.Session) { s.ScanMode = !s.ScanMode })
		a.publish(ctx)
	case pairevents.SetMinIntervalEvent:
		err = a.edit(ctx, func(c *flash.Controller) error { return c.SetMinInterval(e.Seconds) },
			func(cfg flash.Config) (flash.Config, error) { return cfg.WithMinInterval(e.Seconds) })
	case pairevents.SetMaxIntervalEvent:
		err = a.edit(ctx, func(c *flash.Controller) error { return c.SetMaxInterval(e.Seconds) },
			func(cfg flash.Config) (flash.Config, error) { return cfg.WithMaxInterval(e.Seconds) })
	case pairevents.SetPulseEvent:
		err = a.edit(ctx, func(c *flash.Controller) error { return c.SetPulse(e.Seconds) },
			func(cfg flash.Config) (flash.Config, error) { return cfg.WithPulse(e.Seconds) })
	case pairevents.SelectIconEvent:
		err = a.edit(ctx, func(c *flash.Controller) error { return c.SetIcon(e.Icon) },
			func(cfg flash.Config) (flash.Config, error) { return cfg.WithIcon(e.Icon) })
	case pairevents.StartFlashEvent:
		err = a.control(true, func(c *flash.Controller) error { return c.Start() })
	case pairevents.StopFlashEvent:
		err = a.control(false, func(c *flash.Controller) error { return c.Stop() })
	default:
		a.logger.Warn("Unhandled app event", "event", fmt.Sprintf("%T", event))
	}
	if err != nil {
		a.sendAndLogError(ctx, "Request rejected", err)
	}
}

// edit changes a flash setting. Before the flash protocol is active the
// setting only changes the config the session will start with.
func (a *App) edit(ctx context.Context, live func(*flash.Controller) error, preset func(flash.Config) (flash.Config, error)) error {
	if a.ctrl != nil {
		return live(a.ctrl)
	}
	if a.machine.Record.Role == pairing.RoleFollower {
		return flash.ErrNotLeader
	}
	cfg, err := preset(a.flashCfg)
	if err != nil {
		return err
	}
	a.flashCfg = cfg
	a.state.Update(func(s *app.Session) { s.Flash.Config = cfg })
	a.publish(ctx)
	return nil
}

// control runs a leader operation. Stopping works while the peer is gone so
// a running loop can always be ended.
func (a *App) control(needsPeer bool, fn func(*flash.Controller) error) error {
	if a.machine.Record.Role == pairing.RoleFollower {
		return flash.ErrNotLeader
	}
	if a.ctrl == nil || (needsPeer && !a.machine.Record.Connected) {
		return flash.ErrNotConnected
	}
	return fn(a.ctrl)
}

// publish projects the machine into the session view and sends it to the UI.
func (a *App) publish(ctx context.Context) {
	m := a.machine
	sess := a.state.Update(func(s *app.Session) {
		s.State = m.State
		s.Role = m.Record.Role
		s.Connected = m.Record.Connected
		s.Candidates = len(m.Record.Candidates)
	})
	a.send(ctx, pairevents.SnapshotMsg{Session: sess})
}

func (a *App) send(ctx context.Context, msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	case <-ctx.Done():
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(ctx context.Context, baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.state.Update(func(s *app.Session) { s.Notice = err.Error() })
	a.send(ctx, appevents.AppErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
