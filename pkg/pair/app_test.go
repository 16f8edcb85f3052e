package pair

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/reactionTrainer/internal/app"
	appevents "github.com/rescp17/reactionTrainer/internal/app_events"
	pairevents "github.com/rescp17/reactionTrainer/internal/app_events/pair"
	"github.com/rescp17/reactionTrainer/pkg/flash"
	"github.com/rescp17/reactionTrainer/pkg/flash/flashtest"
	"github.com/rescp17/reactionTrainer/pkg/pairing"
	"github.com/rescp17/reactionTrainer/pkg/signaling"
	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

type fakeChannel struct {
	label string

	mu        sync.Mutex
	open      bool
	closed    bool
	sent      []string
	onMessage func([]byte)
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.closed {
		return rtc.ErrChannelNotOpen
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.onMessage = nil
	return nil
}

func (c *fakeChannel) deliver(text string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn([]byte(text))
	}
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakePeer struct {
	mu         sync.Mutex
	generation uint64
	channels   []*fakeChannel
	accepted   []webrtc.SessionDescription
	answers    int
	acceptErr  error
	closeCalls int

	onCandidate func(webrtc.ICECandidateInit, rtc.Snapshot)
	onState     func(webrtc.PeerConnectionState)
	onChannel   func(Channel)
}

func (p *fakePeer) OpenChannel(label string) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := &fakeChannel{label: label}
	p.channels = append(p.channels, ch)
	return ch, nil
}

// testSDP is a minimal data channel description carrying the given
// candidate lines.
func testSDP(session string, candidates ...string) string {
	sdp := "v=0\r\n" +
		"o=- " + session + " 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n"
	for _, c := range candidates {
		sdp += "a=" + c + "\r\n"
	}
	return sdp
}

func (p *fakePeer) snapshotLocked(t webrtc.SDPType, sdp string) rtc.Snapshot {
	p.generation++
	return rtc.Snapshot{Description: webrtc.SessionDescription{Type: t, SDP: sdp}, Generation: p.generation}
}

func (p *fakePeer) CreateLocalOffer() (rtc.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(webrtc.SDPTypeOffer, testSDP("1")), nil
}

func (p *fakePeer) AcceptRemote(_ context.Context, desc webrtc.SessionDescription) (*rtc.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, desc)
	if p.acceptErr != nil {
		return nil, p.acceptErr
	}
	if desc.Type == webrtc.SDPTypeAnswer {
		return nil, nil
	}
	p.answers++
	snap := p.snapshotLocked(webrtc.SDPTypeAnswer, testSDP("2"))
	return &snap, nil
}

func (p *fakePeer) OnCandidate(fn func(webrtc.ICECandidateInit, rtc.Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) OnChannel(fn func(Channel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChannel = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	p.onCandidate, p.onState, p.onChannel = nil, nil, nil
	for _, ch := range p.channels {
		ch.mu.Lock()
		ch.closed = true
		ch.mu.Unlock()
	}
	return nil
}

func (p *fakePeer) setState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (p *fakePeer) gather(c string) {
	p.mu.Lock()
	fn := p.onCandidate
	snap := p.snapshotLocked(webrtc.SDPTypeOffer, testSDP("1", c))
	p.mu.Unlock()
	if fn != nil {
		fn(webrtc.ICECandidateInit{Candidate: c}, snap)
	}
}

func (p *fakePeer) openInbound(label string) *fakeChannel {
	ch := &fakeChannel{label: label, open: true}
	p.mu.Lock()
	fn := p.onChannel
	p.mu.Unlock()
	if fn != nil {
		fn(ch)
	}
	return ch
}

func (p *fakePeer) localChannel() *fakeChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.channels) == 0 {
		return nil
	}
	return p.channels[0]
}

func (p *fakePeer) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	if p.onCandidate != nil {
		n++
	}
	if p.onState != nil {
		n++
	}
	if p.onChannel != nil {
		n++
	}
	return n
}

type harness struct {
	app   *App
	peer  *fakePeer
	clock *flashtest.Clock
	done  chan error

	mu     sync.Mutex
	errors []error
	closed bool
}

func startApp(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		peer:  &fakePeer{},
		clock: flashtest.NewClock(),
		done:  make(chan error, 1),
	}
	h.app = NewApp(Options{
		Flash:   flash.DefaultConfig(),
		NewPeer: func() (Peer, error) { return h.peer, nil },
		FlashOptions: flash.Options{
			Clock:  h.clock,
			Random: func() float64 { return 0 },
			Coin:   func() bool { return false },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go h.drain(ctx)
	go func() { h.done <- h.app.Run(ctx) }()

	h.eventually(t, func(s app.Session) bool { return s.State == pairing.StateAwaitingScan && s.Payload != "" })
	return h
}

func (h *harness) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.app.UIMessages():
			h.record(msg)
		}
	}
}

func (h *harness) record(msg tea.Msg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch m := msg.(type) {
	case appevents.AppErrorMsg:
		h.errors = append(h.errors, m.Err)
	case appevents.AppClosedMsg:
		h.closed = true
	}
}

func (h *harness) lastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errors) == 0 {
		return nil
	}
	return h.errors[len(h.errors)-1]
}

func (h *harness) send(ev appevents.AppEvent) {
	h.app.AppEvents() <- ev
}

func (h *harness) eventually(t *testing.T, cond func(app.Session) bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.app.Session()) }, 2*time.Second, 5*time.Millisecond, msgAndArgs...)
}

func payloadType(t *testing.T, s app.Session) webrtc.SDPType {
	t.Helper()
	p, err := signaling.Decode(s.Payload)
	require.NoError(t, err)
	return p.SessionDescription().Type
}

func (h *harness) becomeLeader(t *testing.T) *fakeChannel {
	t.Helper()
	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"answer","sdp":"Y"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleLeader })
	h.peer.setState(webrtc.PeerConnectionStateConnected)
	h.eventually(t, func(s app.Session) bool { return s.FlashActive && s.Connected })

	local := h.peer.localChannel()
	require.NotNil(t, local)
	local.mu.Lock()
	local.open = true
	local.mu.Unlock()
	return local
}

func TestMountPublishesOffer(t *testing.T) {
	h := startApp(t)

	s := h.app.Session()
	assert.Equal(t, webrtc.SDPTypeOffer, payloadType(t, s))
	assert.NotEmpty(t, s.ID)
	local := h.peer.localChannel()
	require.NotNil(t, local)
	assert.Equal(t, rtc.DefaultChannelLabel, local.Label())
}

func TestCandidatesRefreshPayload(t *testing.T) {
	h := startApp(t)

	h.peer.gather("candidate:1 1 udp 1 192.168.1.2 5000 typ host")
	h.eventually(t, func(s app.Session) bool { return s.Candidates == 1 })

	p, err := signaling.Decode(h.app.Session().Payload)
	require.NoError(t, err)
	assert.Contains(t, p.SDP, "192.168.1.2 5000 typ host")
	candidates, err := p.Candidates()
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "the candidate already in the snapshot is not folded twice")
}

// A device that scans an offer first answers it and shows the answer.
func TestScannedOfferPublishesAnswer(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"offer","sdp":"X"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleFollower })

	s := h.app.Session()
	assert.Equal(t, webrtc.SDPTypeAnswer, payloadType(t, s))
	assert.Equal(t, pairing.StateRoleResolved, s.State)

	h.peer.mu.Lock()
	defer h.peer.mu.Unlock()
	require.Len(t, h.peer.accepted, 1)
	assert.Equal(t, "X", h.peer.accepted[0].SDP)
}

// The follower's answer has to be scanned back, so answering leaves scan mode.
func TestAnsweringLeavesScanMode(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.ToggleScanModeEvent{})
	h.eventually(t, func(s app.Session) bool { return s.ScanMode })

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"offer","sdp":"X"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleFollower })

	s := h.app.Session()
	assert.False(t, s.ScanMode)
	assert.Equal(t, webrtc.SDPTypeAnswer, payloadType(t, s))
}

// A device that scans an answer becomes the leader and keeps its offer.
func TestScannedAnswerKeepsOffer(t *testing.T) {
	h := startApp(t)
	before := h.app.Session()

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"answer","sdp":"Y"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleLeader })

	s := h.app.Session()
	assert.Equal(t, before.Payload, s.Payload)
	assert.Equal(t, before.PayloadGeneration, s.PayloadGeneration)
	h.peer.mu.Lock()
	assert.Zero(t, h.peer.answers)
	h.peer.mu.Unlock()

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"offer","sdp":"X"}`})
	h.send(pairevents.ToggleScanModeEvent{})
	h.eventually(t, func(s app.Session) bool { return s.ScanMode })
	assert.Equal(t, pairing.RoleLeader, h.app.Session().Role)
}

func TestMalformedScanSetsNotice(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"offer"}`})
	h.eventually(t, func(s app.Session) bool { return s.Notice != "" })
	assert.Equal(t, pairing.StateAwaitingScan, h.app.Session().State)
	assert.Equal(t, pairing.RoleUnknown, h.app.Session().Role)
}

func TestNegotiationFailureAllowsRescan(t *testing.T) {
	h := startApp(t)
	h.peer.mu.Lock()
	h.peer.acceptErr = rtc.ErrNegotiation
	h.peer.mu.Unlock()

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"answer","sdp":"Y"}`})
	h.eventually(t, func(s app.Session) bool { return s.Notice != "" })

	h.peer.mu.Lock()
	h.peer.acceptErr = nil
	h.peer.mu.Unlock()
	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"answer","sdp":"Y"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleLeader })
}

func TestStartNeedsConnectedLeader(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.StartFlashEvent{})
	require.Eventually(t, func() bool { return h.lastError() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.lastError(), flash.ErrNotConnected)
}

func TestPresetBeforeConnecting(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.SetMaxIntervalEvent{Seconds: 6})
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.MaxIntervalSeconds == 6 })

	h.send(pairevents.SetMinIntervalEvent{Seconds: 7})
	require.Eventually(t, func() bool { return h.lastError() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.lastError(), flash.ErrInvalidEdit)
	assert.Equal(t, float64(3), h.app.Session().Flash.Config.MinIntervalSeconds)
}

func TestLeaderDrivesFlashes(t *testing.T) {
	h := startApp(t)
	local := h.becomeLeader(t)

	h.send(pairevents.StartFlashEvent{})
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.Playing })

	sent := local.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], `"isFlashPlaying":true`)
	assert.Equal(t, flash.SignalFlash, sent[1])

	h.send(pairevents.SelectIconEvent{Icon: flash.IconPlayer})
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.Icon == flash.IconPlayer })
	sent = local.Sent()
	assert.Contains(t, sent[len(sent)-1], `"iconName":"player"`)
}

// Losing the connection clears the flag but leaves the loop running.
func TestDisconnectKeepsLoopRunning(t *testing.T) {
	h := startApp(t)
	h.becomeLeader(t)
	h.send(pairevents.StartFlashEvent{})
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.Playing })

	h.peer.setState(webrtc.PeerConnectionStateDisconnected)
	h.eventually(t, func(s app.Session) bool { return !s.Connected })

	s := h.app.Session()
	assert.Equal(t, pairing.StateConnected, s.State)
	assert.True(t, s.Flash.Config.Playing)
	assert.Equal(t, 1, h.clock.Active(), "the next flash is still scheduled")

	h.send(pairevents.StartFlashEvent{})
	require.Eventually(t, func() bool { return h.lastError() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.lastError(), flash.ErrNotConnected)

	h.send(pairevents.StopFlashEvent{})
	h.eventually(t, func(s app.Session) bool { return !s.Flash.Config.Playing }, "stopping works without a peer")
	assert.Equal(t, 0, h.clock.Active())
}

func TestFollowerMirrorsInboundChannel(t *testing.T) {
	h := startApp(t)

	h.send(pairevents.ScanSubmittedEvent{Input: `{"type":"offer","sdp":"X"}`})
	h.eventually(t, func(s app.Session) bool { return s.Role == pairing.RoleFollower })

	remote := h.peer.openInbound(rtc.DefaultChannelLabel)
	h.peer.setState(webrtc.PeerConnectionStateConnected)
	h.eventually(t, func(s app.Session) bool { return s.FlashActive && s.Flash.Attached })

	remote.deliver(`{"isFlashPlaying":true,"iconName":"player","minIntervalSecs":2,"maxIntervalSecs":4,"timeoutSecs":1}`)
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.Icon == flash.IconPlayer })

	remote.deliver(flash.SignalFlash)
	h.eventually(t, func(s app.Session) bool { return s.Flash.FlashOn })

	h.send(pairevents.SetMinIntervalEvent{Seconds: 3})
	require.Eventually(t, func() bool { return h.lastError() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.lastError(), flash.ErrNotLeader)
	assert.Empty(t, remote.Sent())
}

func TestQuitTearsDownEverything(t *testing.T) {
	h := startApp(t)
	local := h.becomeLeader(t)
	h.send(pairevents.StartFlashEvent{})
	h.eventually(t, func(s app.Session) bool { return s.Flash.Config.Playing })
	h.send(pairevents.StopFlashEvent{})
	h.send(pairevents.StartFlashEvent{})

	h.send(appevents.QuitEvent{})
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("App did not shut down")
	}

	assert.Equal(t, 0, h.clock.Active(), "no timer left behind")
	assert.Equal(t, 0, h.peer.listenerCount(), "no listener left behind")
	assert.True(t, local.Closed())
	h.peer.mu.Lock()
	assert.Equal(t, 1, h.peer.closeCalls)
	h.peer.mu.Unlock()
	assert.Equal(t, pairing.StateClosed, h.app.Session().State)

	// Late callbacks after teardown are dropped.
	h.peer.setState(webrtc.PeerConnectionStateConnected)
	h.peer.gather("late")
}

func TestContextCancelTearsDown(t *testing.T) {
	peer := &fakePeer{}
	a := NewApp(Options{NewPeer: func() (Peer, error) { return peer, nil }})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	go func() {
		for range a.UIMessages() {
		}
	}()

	require.Eventually(t, func() bool { return a.Session().Payload != "" }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("App did not shut down")
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	assert.Equal(t, 1, peer.closeCalls)
}

func TestPeerCreationFailure(t *testing.T) {
	boom := errors.New("no network")
	a := NewApp(Options{NewPeer: func() (Peer, error) { return nil, boom }})
	go func() {
		for range a.UIMessages() {
		}
	}()

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
