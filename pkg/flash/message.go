package flash

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SignalFlash asks the peer to flash now.
const SignalFlash = "flash"

var ErrUnknownMessage = errors.New("unknown flash message")

type MessageKind int

const (
	MessageFlash MessageKind = iota
	MessageConfig
)

// Message is one data channel message of the flash protocol.
type Message struct {
	Kind   MessageKind
	Config Config
}

// EncodeConfig serializes the full config sent to the follower.
func EncodeConfig(cfg Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal flash config: %w", err)
	}
	return string(data), nil
}

// ParseMessage decodes a data channel payload: the bare flash signal or a
// full JSON config.
func ParseMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == SignalFlash {
		return Message{Kind: MessageFlash}, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, truncate(trimmed))
	}

	var cfg Config
	if err := json.Unmarshal(trimmed, &cfg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if err := cfg.Validate(); err != nil {
		return Message{}, err
	}
	return Message{Kind: MessageConfig, Config: cfg}, nil
}

func truncate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "…"
	}
	return string(b)
}
