// Package pairing holds the pairing state machine shared by both devices.
//
// Both devices start the same way: they open a data channel and create an
// offer. The role is decided by what the user scans first. Scanning the
// other device's answer makes this device the leader; scanning an offer
// makes it the follower, which answers and shows that answer instead.
//
// Transition is pure. It never touches the network; it returns the effects
// the caller must run and feeds their results back as events.
package pairing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/reactionTrainer/pkg/signaling"
	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

var ErrNoLocalOffer = errors.New("no local offer to answer against")

type State int

const (
	StateIdle State = iota
	StateAwaitingLocalOffer
	StateAwaitingScan
	StateRoleResolved
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingLocalOffer:
		return "awaiting local offer"
	case StateAwaitingScan:
		return "awaiting scan"
	case StateRoleResolved:
		return "role resolved"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Role int

const (
	RoleUnknown Role = iota
	RoleLeader
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleUnknown:
		return "unknown"
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Record is what one device knows about its side of the connection.
type Record struct {
	Role Role
	// LocalDescription is the latest full local snapshot, candidates
	// included. It is replaced, never merged.
	LocalDescription *webrtc.SessionDescription
	Generation       uint64
	// Candidates only grows.
	Candidates []webrtc.ICECandidateInit
	Connected  bool
}

// Machine is the pairing state plus its record. The zero value is Idle.
type Machine struct {
	State  State
	Record Record
	// Negotiating is set while an AcceptRemote effect is outstanding.
	Negotiating bool

	// lineStart indexes the first candidate gathered for the current
	// description type.
	lineStart int
}

// New returns an idle machine.
func New() Machine { return Machine{} }

// Transition applies ev to m and returns the new machine and the effects to
// run, in order.
func Transition(m Machine, ev Event) (Machine, []Effect) {
	if m.State == StateClosed {
		return m, nil
	}
	// The candidate slice only ever grows; copy before appending so the
	// caller's old machine stays untouched.
	m.Record.Candidates = append([]webrtc.ICECandidateInit(nil), m.Record.Candidates...)

	switch e := ev.(type) {
	case Mount:
		return mount(m)
	case LocalOfferReady:
		return localOfferReady(m, e)
	case LocalOfferFailed:
		return localOfferFailed(m, e)
	case Scanned:
		return scanned(m, e)
	case RemoteAccepted:
		return remoteAccepted(m, e)
	case NegotiationFailed:
		return negotiationFailed(m, e)
	case CandidateGathered:
		return candidateGathered(m, e)
	case ConnectionStateChanged:
		return connectionStateChanged(m, e)
	case Unmount:
		m.State = StateClosed
		m.Negotiating = false
		return m, []Effect{Teardown{}}
	default:
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: fmt.Sprintf("unhandled pairing event %T", ev)}}
	}
}

func mount(m Machine) (Machine, []Effect) {
	if m.State != StateIdle {
		return m, nil
	}
	m.State = StateAwaitingLocalOffer
	return m, []Effect{
		OpenChannel{Label: rtc.DefaultChannelLabel},
		CreateOffer{},
	}
}

func localOfferReady(m Machine, e LocalOfferReady) (Machine, []Effect) {
	var effects []Effect
	if m.State == StateAwaitingLocalOffer {
		m.State = StateAwaitingScan
	}
	if m.adopt(e.Snapshot) {
		effects = append(effects, m.publish())
	}
	return m, effects
}

func localOfferFailed(m Machine, e LocalOfferFailed) (Machine, []Effect) {
	if m.State == StateAwaitingLocalOffer {
		// The follower path does not need a local offer, so scanning stays
		// possible.
		m.State = StateAwaitingScan
	}
	return m, []Effect{Log{Level: slog.LevelError, Msg: "Failed to create local offer", Err: e.Err}}
}

func scanned(m Machine, e Scanned) (Machine, []Effect) {
	switch {
	case m.Record.Role != RoleUnknown:
		return m, []Effect{Log{Level: slog.LevelInfo, Msg: "Role already resolved, ignoring scan", Attrs: []any{"role", m.Record.Role}}}
	case m.Negotiating:
		return m, []Effect{Log{Level: slog.LevelInfo, Msg: "Negotiation in progress, ignoring scan"}}
	case m.State != StateAwaitingScan:
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: "Not ready to scan", Attrs: []any{"state", m.State}}}
	}

	payload, err := signaling.Decode(e.Text)
	if err != nil {
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: "Ignoring scanned payload", Err: err}}
	}

	desc := payload.SessionDescription()
	switch desc.Type {
	case webrtc.SDPTypeAnswer:
		if m.Record.LocalDescription == nil {
			return m, []Effect{Log{Level: slog.LevelError, Msg: "Scanned an answer", Err: ErrNoLocalOffer}}
		}
		m.Negotiating = true
		return m, []Effect{AcceptRemote{Description: desc, Role: RoleLeader}}
	case webrtc.SDPTypeOffer:
		m.Negotiating = true
		return m, []Effect{
			ListenInbound{},
			AcceptRemote{Description: desc, Role: RoleFollower},
		}
	default:
		// Decode only lets offers and answers through.
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: "Ignoring scanned payload", Attrs: []any{"type", desc.Type.String()}}}
	}
}

func remoteAccepted(m Machine, e RemoteAccepted) (Machine, []Effect) {
	if !m.Negotiating || m.Record.Role != RoleUnknown {
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: "Unexpected negotiation result", Attrs: []any{"role", e.Role}}}
	}
	m.Negotiating = false
	m.Record.Role = e.Role
	m.State = StateRoleResolved

	effects := []Effect{Log{Level: slog.LevelInfo, Msg: "Role resolved", Attrs: []any{"role", e.Role}}}
	if e.Role == RoleFollower {
		if e.Local != nil && m.adopt(*e.Local) {
			effects = append(effects, m.publish())
		}
		effects = append(effects, ShowLocal{})
	}
	if m.Record.Connected {
		m.State = StateConnected
		effects = append(effects, ActivateFlash{Role: m.Record.Role})
	}
	return m, effects
}

func negotiationFailed(m Machine, e NegotiationFailed) (Machine, []Effect) {
	if !m.Negotiating {
		return m, nil
	}
	m.Negotiating = false
	return m, []Effect{Log{Level: slog.LevelError, Msg: "Negotiation failed, scan again", Err: e.Err}}
}

func candidateGathered(m Machine, e CandidateGathered) (Machine, []Effect) {
	changed := m.adopt(e.Snapshot)
	m.Record.Candidates = append(m.Record.Candidates, e.Candidate)
	if changed {
		return m, []Effect{m.publish()}
	}
	return m, nil
}

func connectionStateChanged(m Machine, e ConnectionStateChanged) (Machine, []Effect) {
	if m.Record.Connected == e.Connected {
		return m, nil
	}
	m.Record.Connected = e.Connected
	if !e.Connected {
		return m, []Effect{Log{Level: slog.LevelWarn, Msg: "Peer connection lost"}}
	}
	if m.State != StateRoleResolved {
		// Remembered until the negotiation result arrives.
		return m, nil
	}
	m.State = StateConnected
	return m, []Effect{
		Log{Level: slog.LevelInfo, Msg: "Peer connected", Attrs: []any{"role", m.Record.Role}},
		ActivateFlash{Role: m.Record.Role},
	}
}

// adopt replaces the local description with snap unless a newer one is
// already held. It reports whether the held description changed.
func (m *Machine) adopt(snap rtc.Snapshot) bool {
	if snap.IsZero() || snap.Generation <= m.Record.Generation {
		return false
	}
	prev := m.Record.LocalDescription
	if prev == nil || prev.Type != snap.Description.Type {
		// Candidates gathered for the previous description are not folded
		// into the new one.
		m.lineStart = len(m.Record.Candidates)
	}
	desc := snap.Description
	m.Record.LocalDescription = &desc
	m.Record.Generation = snap.Generation
	return true
}

func (m *Machine) publish() PublishLocal {
	return PublishLocal{
		Description: *m.Record.LocalDescription,
		Candidates:  append([]webrtc.ICECandidateInit(nil), m.Record.Candidates[m.lineStart:]...),
		Generation:  m.Record.Generation,
	}
}
