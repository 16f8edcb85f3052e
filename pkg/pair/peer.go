package pair

import (
	"context"

	"github.com/pion/webrtc/v4"

	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

// Channel is one data channel.
type Channel interface {
	Label() string
	IsOpen() bool
	SendText(text string) error
	OnMessage(fn func(data []byte))
	Close() error
}

// Peer is the connection the App negotiates on. Close must also detach the
// registered callbacks.
type Peer interface {
	OpenChannel(label string) (Channel, error)
	CreateLocalOffer() (rtc.Snapshot, error)
	AcceptRemote(ctx context.Context, desc webrtc.SessionDescription) (*rtc.Snapshot, error)
	OnCandidate(fn func(webrtc.ICECandidateInit, rtc.Snapshot))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnChannel(fn func(Channel))
	Close() error
}

// NewPeer returns a Peer factory backed by pion.
func NewPeer(config rtc.Config) func() (Peer, error) {
	api := rtc.NewWebRTCAPI(config)
	return func() (Peer, error) {
		conn, err := api.NewConnection()
		if err != nil {
			return nil, err
		}
		return &connectionPeer{Connection: conn}, nil
	}
}

type connectionPeer struct {
	*rtc.Connection
}

func (p *connectionPeer) OpenChannel(label string) (Channel, error) {
	dc, err := p.OpenDataChannel(label)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p *connectionPeer) OnChannel(fn func(Channel)) {
	p.OnDataChannel(func(dc *rtc.DataChannel) { fn(dc) })
}
