package signaling

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostCandidate = "candidate:1966762134 1 udp 2130706431 192.168.1.20 51234 typ host"

// testSDP is a data-channel-only description of the kind pion produces.
func testSDP(extra ...string) string {
	lines := []string{
		"v=0",
		"o=- 4215775240449105457 1736000000 IN IP4 0.0.0.0",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0",
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel",
		"c=IN IP4 0.0.0.0",
		"a=setup:actpass",
		"a=mid:0",
		"a=sendrecv",
		"a=sctp-port:5000",
		"a=ice-ufrag:QdPsVyeIyCeFNmPq",
		"a=ice-pwd:XdfTTbPiHgaJVkGmQQmVnxqgXgRLfwLx",
	}
	lines = append(lines, extra...)
	return strings.Join(lines, "\r\n") + "\r\n"
}

func ptr[T any](v T) *T { return &v }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name       string
		desc       webrtc.SessionDescription
		candidates []webrtc.ICECandidateInit
	}{
		{
			name: "offer without candidates",
			desc: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP()},
		},
		{
			name: "answer without candidates",
			desc: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP()},
		},
		{
			name: "offer with candidates already in the sdp",
			desc: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP("a=" + hostCandidate)},
			candidates: []webrtc.ICECandidateInit{
				{Candidate: hostCandidate, SDPMid: ptr("0"), SDPMLineIndex: ptr(uint16(0))},
			},
		},
		{
			name: "opaque sdp is carried verbatim",
			desc: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "X"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			text, err := Encode(tc.desc, tc.candidates)
			require.NoError(t, err)

			decoded, err := Decode(text)
			require.NoError(t, err)

			got := decoded.SessionDescription()
			assert.Equal(t, tc.desc.Type, got.Type)
			assert.Equal(t, tc.desc.SDP, got.SDP)
		})
	}
}

func TestEncodeFoldsNewCandidates(t *testing.T) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP()}
	second := "candidate:842163049 1 udp 1677729535 203.0.113.7 40000 typ srflx raddr 0.0.0.0 rport 0"

	text, err := Encode(desc, []webrtc.ICECandidateInit{
		{Candidate: hostCandidate, SDPMid: ptr("0")},
		{Candidate: second, SDPMLineIndex: ptr(uint16(0))},
		{Candidate: hostCandidate, SDPMid: ptr("0")},
		{Candidate: ""},
	})
	require.NoError(t, err)

	decoded, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, "offer", decoded.Type)

	candidates, err := decoded.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, hostCandidate, candidates[0].Candidate)
	assert.Equal(t, second, candidates[1].Candidate)
	require.NotNil(t, candidates[0].SDPMid)
	assert.Equal(t, "0", *candidates[0].SDPMid)
}

func TestEncodeRejectsUnsupportedType(t *testing.T) {
	_, err := Encode(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}, nil)
	assert.ErrorIs(t, err, ErrInvalidDescription)
}

func TestEncodeRejectsUnparseableSDPWithCandidates(t *testing.T) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not an sdp"}
	_, err := Encode(desc, []webrtc.ICECandidateInit{{Candidate: hostCandidate}})
	assert.ErrorIs(t, err, ErrInvalidDescription)
}

func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"json array", `["offer"]`},
		{"missing type", `{"sdp":"v=0"}`},
		{"unknown type", `{"type":"pranswer","sdp":"v=0"}`},
		{"missing sdp", `{"type":"offer"}`},
		{"blank sdp", `{"type":"answer","sdp":"   "}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.text)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecodeAcceptsBrowserPayload(t *testing.T) {
	decoded, err := Decode(`  {"type":"offer","sdp":"X"}` + "\n")
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, decoded.SessionDescription().Type)
	assert.Equal(t, "X", decoded.SDP)
}
