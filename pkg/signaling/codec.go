// Package signaling turns the local session description into the text payload
// carried by a QR code, and turns a scanned payload back into a description.
//
// There is no signaling server: the payload is the whole handshake. Every
// payload is a full snapshot of the current description with all the
// candidates gathered so far folded into its SDP.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// MaxPayloadBytes is the largest payload a version 40 QR code holds in byte
// mode at the lowest error correction level.
const MaxPayloadBytes = 2953

var (
	// ErrMalformedPayload is returned when a scanned payload is not a usable
	// session description.
	ErrMalformedPayload = errors.New("malformed signaling payload")
	// ErrInvalidDescription is returned when candidates cannot be folded into
	// a description because its SDP does not parse.
	ErrInvalidDescription = errors.New("invalid session description")
)

const candidatePrefix = "candidate:"

// Payload is the JSON document encoded into the QR code. Its shape matches
// what a browser produces with JSON.stringify(RTCSessionDescription).
type Payload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// SessionDescription converts the payload into a pion session description.
func (p Payload) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(p.Type),
		SDP:  p.SDP,
	}
}

// Candidates lists the ICE candidates carried by the payload's SDP.
func (p Payload) Candidates() ([]webrtc.ICECandidateInit, error) {
	parsed, err := parse(p.SDP)
	if err != nil {
		return nil, err
	}

	var out []webrtc.ICECandidateInit
	for i, md := range parsed.MediaDescriptions {
		mid, _ := md.Attribute("mid")
		for _, attr := range md.Attributes {
			if attr.Key != "candidate" {
				continue
			}
			index := uint16(i)
			m := mid
			out = append(out, webrtc.ICECandidateInit{
				Candidate:     candidatePrefix + attr.Value,
				SDPMid:        &m,
				SDPMLineIndex: &index,
			})
		}
	}
	return out, nil
}

// Encode serializes the description and the candidates gathered so far.
// Candidates already present in the SDP are not duplicated; when nothing has
// to be added the SDP is carried verbatim.
func Encode(desc webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) (string, error) {
	if desc.Type != webrtc.SDPTypeOffer && desc.Type != webrtc.SDPTypeAnswer {
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidDescription, desc.Type.String())
	}

	sdpText := desc.SDP
	if len(candidates) > 0 {
		folded, err := fold(sdpText, candidates)
		if err != nil {
			return "", err
		}
		sdpText = folded
	}

	data, err := json.Marshal(Payload{Type: desc.Type.String(), SDP: sdpText})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

// Decode parses a scanned payload. Only offers and answers with a non-empty
// SDP are accepted.
func Decode(text string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch p.Type {
	case "offer", "answer":
	case "":
		return Payload{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	default:
		return Payload{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedPayload, p.Type)
	}

	if strings.TrimSpace(p.SDP) == "" {
		return Payload{}, fmt.Errorf("%w: missing sdp", ErrMalformedPayload)
	}
	return p, nil
}

// fold adds the candidates that the SDP does not already carry to the media
// section they belong to.
func fold(sdpText string, candidates []webrtc.ICECandidateInit) (string, error) {
	parsed, err := parse(sdpText)
	if err != nil {
		return "", err
	}
	if len(parsed.MediaDescriptions) == 0 {
		return "", fmt.Errorf("%w: no media section", ErrInvalidDescription)
	}

	added := 0
	for _, c := range candidates {
		value := strings.TrimPrefix(strings.TrimPrefix(c.Candidate, "a="), candidatePrefix)
		if value == "" {
			continue
		}
		md := mediaFor(parsed, c)
		if hasCandidate(md, value) {
			continue
		}
		md.Attributes = append(md.Attributes, sdp.NewAttribute("candidate", value))
		added++
	}

	if added == 0 {
		return sdpText, nil
	}

	out, err := parsed.Marshal()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return string(out), nil
}

func parse(sdpText string) (*sdp.SessionDescription, error) {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(sdpText)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return parsed, nil
}

// mediaFor picks the media section by mid first, then by m-line index, then
// falls back to the first section.
func mediaFor(parsed *sdp.SessionDescription, c webrtc.ICECandidateInit) *sdp.MediaDescription {
	if c.SDPMid != nil {
		for _, md := range parsed.MediaDescriptions {
			if mid, ok := md.Attribute("mid"); ok && mid == *c.SDPMid {
				return md
			}
		}
	}
	if c.SDPMLineIndex != nil && int(*c.SDPMLineIndex) < len(parsed.MediaDescriptions) {
		return parsed.MediaDescriptions[*c.SDPMLineIndex]
	}
	return parsed.MediaDescriptions[0]
}

func hasCandidate(md *sdp.MediaDescription, value string) bool {
	for _, attr := range md.Attributes {
		if attr.Key == "candidate" && attr.Value == value {
			return true
		}
	}
	return false
}
