package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannel wraps a pion DataChannel with the small surface the trainer
// protocol needs.
type DataChannel struct {
	raw       *webrtc.DataChannel
	closeOnce sync.Once
}

func newDataChannel(raw *webrtc.DataChannel) *DataChannel {
	return &DataChannel{raw: raw}
}

func (c *DataChannel) Label() string { return c.raw.Label() }

// IsOpen reports whether messages can be sent right now.
func (c *DataChannel) IsOpen() bool {
	return c.raw.ReadyState() == webrtc.DataChannelStateOpen
}

// SendText sends a text message; it fails fast when the channel is not open.
func (c *DataChannel) SendText(text string) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}
	return c.raw.SendText(text)
}

// OnMessage registers the message callback; data is the raw payload.
func (c *DataChannel) OnMessage(fn func(data []byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

// Close detaches the message callback and closes the channel once.
func (c *DataChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.raw.OnMessage(func(webrtc.DataChannelMessage) {})
		err = c.raw.Close()
	})
	return err
}
