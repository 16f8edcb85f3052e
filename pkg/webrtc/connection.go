package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	MTU uint = 1400

	// DefaultChannelLabel is the label the browser trainer uses, kept so
	// both implementations can pair with each other.
	DefaultChannelLabel = "Signals"
)

var (
	ErrOfferExists    = errors.New("local offer already created")
	ErrNegotiation    = errors.New("negotiation failed")
	ErrClosed         = errors.New("connection closed")
	ErrChannelNotOpen = errors.New("data channel is not open")
)

// Config holds the configuration for creating a new Connection.
type Config struct {
	ICEServers []webrtc.ICEServer
	// MulticastDNS gathers .local host candidates so that devices on the same
	// network do not leak local addresses into the QR code.
	MulticastDNS bool
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		MulticastDNS: true,
	}
}

// Snapshot is the local description at one point in time. Generation grows
// with every snapshot taken, so a consumer can drop out of order deliveries.
type Snapshot struct {
	Description webrtc.SessionDescription
	Generation  uint64
}

// IsZero reports whether no local description existed when it was taken.
func (s Snapshot) IsZero() bool {
	return s.Description.SDP == ""
}

type WebRTCAPI struct {
	api    *webrtc.API
	config Config
}

func NewWebRTCAPI(config Config) *WebRTCAPI {
	settings := webrtc.SettingEngine{}
	if config.MulticastDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	}
	settings.SetReceiveMTU(MTU)

	// Using NewAPI is crucial for managing multiple PeerConnections in one application.
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	return &WebRTCAPI{
		api:    api,
		config: config,
	}
}

func (a *WebRTCAPI) createPeerconnection() (*webrtc.PeerConnection, error) {
	servers := a.config.ICEServers
	if len(servers) == 0 {
		servers = DefaultConfig().ICEServers
	}
	return a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: servers,
	})
}

// Connection owns one peer connection for a pairing session. Both devices
// start identically: an eager offer and an eager data channel. Which side
// ends up answering is decided later by AcceptRemote.
type Connection struct {
	api *WebRTCAPI

	negotiation sync.Mutex // serializes offer/answer work

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	channels      []*DataChannel
	offered       bool
	closed        bool
	generation    uint64
	state         webrtc.PeerConnectionState
	onCandidate   func(webrtc.ICECandidateInit, Snapshot)
	onStateChange func(webrtc.PeerConnectionState)
	onDataChannel func(*DataChannel)
}

// NewConnection creates a peer connection with this API's settings.
func (a *WebRTCAPI) NewConnection() (*Connection, error) {
	pc, err := a.createPeerconnection()
	if err != nil {
		err = fmt.Errorf("failed to create peer connection: %w", err)
		slog.Error("NewConnection", "error", err)
		return nil, err
	}

	c := &Connection{
		api:   a,
		pc:    pc,
		state: webrtc.PeerConnectionStateNew,
	}
	c.registerEventHandlers(pc)
	return c, nil
}

// registerEventHandlers forwards pion callbacks of pc to the registered
// listeners. Callbacks from a replaced or closed peer connection are dropped.
func (c *Connection) registerEventHandlers(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.mu.Lock()
		if c.closed || c.pc != pc {
			c.mu.Unlock()
			return
		}
		snap := c.snapshotLocked()
		fn := c.onCandidate
		c.mu.Unlock()

		if fn != nil {
			fn(candidate.ToJSON(), snap)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("PeerConnection state", "state", state.String())
		c.mu.Lock()
		if c.closed || c.pc != pc {
			c.mu.Unlock()
			return
		}
		c.state = state
		fn := c.onStateChange
		c.mu.Unlock()

		if fn != nil {
			fn(state)
		}
	})

	pc.OnDataChannel(func(raw *webrtc.DataChannel) {
		c.mu.Lock()
		if c.closed || c.pc != pc {
			c.mu.Unlock()
			_ = raw.Close()
			return
		}
		dc := newDataChannel(raw)
		c.channels = append(c.channels, dc)
		fn := c.onDataChannel
		c.mu.Unlock()

		slog.Debug("Inbound data channel", "label", raw.Label())
		if fn != nil {
			fn(dc)
		}
	})
}

// snapshotLocked must be called with c.mu held.
func (c *Connection) snapshotLocked() Snapshot {
	c.generation++
	snap := Snapshot{Generation: c.generation}
	if desc := c.pc.LocalDescription(); desc != nil {
		snap.Description = *desc
	}
	return snap
}

// LocalSnapshot returns the current local description including every
// candidate gathered so far.
func (c *Connection) LocalSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Connection) peer() (*webrtc.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.pc, nil
}

// CreateLocalOffer creates and applies the session's single eager offer,
// which starts candidate gathering before the role is known.
func (c *Connection) CreateLocalOffer() (Snapshot, error) {
	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	pc, err := c.peer()
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	offered := c.offered
	c.offered = true
	c.mu.Unlock()
	if offered {
		return Snapshot{}, ErrOfferExists
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		err = fmt.Errorf("fail to createOffer %w", err)
		slog.Error("CreateLocalOffer", "error", err)
		return Snapshot{}, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		err = fmt.Errorf("fail to set local description %w", err)
		slog.Error("CreateLocalOffer", "error", err)
		return Snapshot{}, err
	}
	return c.LocalSnapshot(), nil
}

// OpenDataChannel creates an ordered, reliable channel on the connection.
func (c *Connection) OpenDataChannel(label string) (*DataChannel, error) {
	pc, err := c.peer()
	if err != nil {
		return nil, err
	}
	raw, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	dc := newDataChannel(raw)
	c.mu.Lock()
	c.channels = append(c.channels, dc)
	c.mu.Unlock()
	return dc, nil
}

// AcceptRemote applies a scanned remote description. An answer completes
// the leader's negotiation and returns a nil snapshot. An offer turns this
// side into the answerer: the eager offer is rolled back and the returned
// snapshot holds the local answer.
func (c *Connection) AcceptRemote(ctx context.Context, desc webrtc.SessionDescription) (*Snapshot, error) {
	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	pc, err := c.peer()
	if err != nil {
		return nil, err
	}

	switch desc.Type {
	case webrtc.SDPTypeAnswer:
		if err := pc.SetRemoteDescription(desc); err != nil {
			return nil, fmt.Errorf("%w: failed to set remote answer: %v", ErrNegotiation, err)
		}
		return nil, nil

	case webrtc.SDPTypeOffer:
		if pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
			if pc, err = c.dropLocalOffer(pc); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := pc.SetRemoteDescription(desc); err != nil {
			return nil, fmt.Errorf("%w: failed to set remote offer: %v", ErrNegotiation, err)
		}

		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create answer: %v", ErrNegotiation, err)
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			return nil, fmt.Errorf("%w: failed to set local description for answer: %v", ErrNegotiation, err)
		}
		snap := c.LocalSnapshot()
		return &snap, nil

	default:
		return nil, fmt.Errorf("%w: unexpected remote description type %q", ErrNegotiation, desc.Type.String())
	}
}

// dropLocalOffer returns the connection to a state that accepts a remote
// offer. A JSEP rollback is tried first; when the stack refuses it the peer
// connection is replaced by a fresh one with the same listeners.
func (c *Connection) dropLocalOffer(pc *webrtc.PeerConnection) (*webrtc.PeerConnection, error) {
	err := pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	if err == nil && pc.SignalingState() == webrtc.SignalingStateStable {
		return pc, nil
	}
	slog.Debug("Rollback unavailable, rebuilding peer connection", "error", err)

	fresh, err := c.api.createPeerconnection()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to rebuild peer connection: %v", ErrNegotiation, err)
	}
	c.registerEventHandlers(fresh)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = fresh.Close()
		return nil, ErrClosed
	}
	old, stale := c.pc, c.channels
	c.pc, c.channels = fresh, nil
	c.state = webrtc.PeerConnectionStateNew
	c.mu.Unlock()

	for _, dc := range stale {
		_ = dc.Close()
	}
	if err := old.Close(); err != nil {
		slog.Debug("Closing replaced peer connection", "error", err)
	}
	return fresh, nil
}

// OnCandidate registers the listener for local candidates. Each call carries
// one candidate and the snapshot of the local description taken right then.
func (c *Connection) OnCandidate(fn func(webrtc.ICECandidateInit, Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnDataChannel registers the listener for channels opened by the remote side.
func (c *Connection) OnDataChannel(fn func(*DataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataChannel = fn
}

// ConnectionState returns the last observed peer connection state.
func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GatheringComplete is closed once the current peer connection has gathered
// all of its candidates.
func (c *Connection) GatheringComplete() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return webrtc.GatheringCompletePromise(c.pc)
}

// Close releases the channels and the peer connection and detaches every
// listener. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onCandidate, c.onStateChange, c.onDataChannel = nil, nil, nil
	pc, channels := c.pc, c.channels
	c.channels = nil
	c.mu.Unlock()

	slog.Info("Closing webrtc connection")
	var errs []error
	for _, dc := range channels {
		errs = append(errs, dc.Close())
	}
	errs = append(errs, pc.Close())
	return errors.Join(errs...)
}
