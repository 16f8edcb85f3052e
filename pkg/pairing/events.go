package pairing

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// Mount starts a session.
type Mount struct{}

// LocalOfferReady carries the eager offer.
type LocalOfferReady struct {
	Snapshot rtc.Snapshot
}

type LocalOfferFailed struct {
	Err error
}

// Scanned is a payload read from the other device's QR code.
type Scanned struct {
	Text string
}

// RemoteAccepted reports a finished AcceptRemote. Local is the follower's
// answer; it is nil for the leader.
type RemoteAccepted struct {
	Role  Role
	Local *rtc.Snapshot
}

type NegotiationFailed struct {
	Err error
}

// CandidateGathered reports one local candidate and the snapshot taken
// right after it.
type CandidateGathered struct {
	Candidate webrtc.ICECandidateInit
	Snapshot  rtc.Snapshot
}

type ConnectionStateChanged struct {
	Connected bool
}

// Unmount ends the session from any state.
type Unmount struct{}

func (Mount) isEvent()                  {}
func (LocalOfferReady) isEvent()        {}
func (LocalOfferFailed) isEvent()       {}
func (Scanned) isEvent()                {}
func (RemoteAccepted) isEvent()         {}
func (NegotiationFailed) isEvent()      {}
func (CandidateGathered) isEvent()      {}
func (ConnectionStateChanged) isEvent() {}
func (Unmount) isEvent()                {}

// Effect is work Transition asks the caller to do.
type Effect interface {
	isEffect()
}

// CreateOffer creates the eager local offer. The result comes back as
// LocalOfferReady or LocalOfferFailed.
type CreateOffer struct{}

// OpenChannel opens the local data channel before the offer is created.
type OpenChannel struct {
	Label string
}

// AcceptRemote sets the scanned description. The result comes back as
// RemoteAccepted or NegotiationFailed.
type AcceptRemote struct {
	Description webrtc.SessionDescription
	Role        Role
}

// ListenInbound routes the peer's data channel, once it arrives, to the
// flash protocol. Only the follower needs it.
type ListenInbound struct{}

// PublishLocal replaces the payload shown to the other device.
type PublishLocal struct {
	Description webrtc.SessionDescription
	Candidates  []webrtc.ICECandidateInit
	Generation  uint64
}

// ShowLocal leaves scan mode so the local payload is on screen. The
// follower's answer is useless until the leader has scanned it.
type ShowLocal struct{}

// ActivateFlash hands the data channel to the flash protocol.
type ActivateFlash struct {
	Role Role
}

type Log struct {
	Level slog.Level
	Msg   string
	Err   error
	Attrs []any
}

// Teardown releases every session resource.
type Teardown struct{}

func (CreateOffer) isEffect()   {}
func (OpenChannel) isEffect()   {}
func (AcceptRemote) isEffect()  {}
func (ListenInbound) isEffect() {}
func (PublishLocal) isEffect()  {}
func (ShowLocal) isEffect()     {}
func (ActivateFlash) isEffect() {}
func (Log) isEffect()           {}
func (Teardown) isEffect()      {}
