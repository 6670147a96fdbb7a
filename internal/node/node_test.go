package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/neurite-core/internal/connection"
	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
	"github.com/nerrad567/neurite-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/neurite-core/internal/status"
	"github.com/nerrad567/neurite-core/internal/wifi"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeSession struct {
	mu           sync.Mutex
	connects     int
	published    []published
	handlers     map[string]mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(error)
	onPublished  func(string)
	connectOK    bool
	connected    bool
	established  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: make(map[string]mqtt.MessageHandler), connectOK: true}
}

// Connect mirrors mqtt.Client: a live session is reported again, otherwise
// the session is established when connectOK allows it.
func (s *fakeSession) Connect() error {
	s.mu.Lock()
	s.connects++
	report := s.connected
	if !s.connected && s.connectOK {
		s.connected = true
		s.established++
		report = true
	}
	cb := s.onConnect
	s.mu.Unlock()
	if report && cb != nil {
		cb()
	}
	return nil
}

func (s *fakeSession) Publish(topic string, payload []byte, qos byte, retained bool) error {
	s.mu.Lock()
	s.published = append(s.published, published{topic, append([]byte(nil), payload...), qos, retained})
	cb := s.onPublished
	s.mu.Unlock()
	if cb != nil {
		cb(topic)
	}
	return nil
}

func (s *fakeSession) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = handler
	return nil
}

func (s *fakeSession) SetOnConnect(cb func()) {
	s.mu.Lock()
	s.onConnect = cb
	s.mu.Unlock()
}

func (s *fakeSession) SetOnDisconnect(cb func(error)) {
	s.mu.Lock()
	s.onDisconnect = cb
	s.mu.Unlock()
}

func (s *fakeSession) SetOnPublished(cb func(string)) {
	s.mu.Lock()
	s.onPublished = cb
	s.mu.Unlock()
}

func (s *fakeSession) setConnectOK(ok bool) {
	s.mu.Lock()
	s.connectOK = ok
	s.mu.Unlock()
}

func (s *fakeSession) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *fakeSession) handler(topic string) mqtt.MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[topic]
}

func (s *fakeSession) establishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

func (s *fakeSession) dropBroker(err error) {
	s.mu.Lock()
	s.connected = false
	cb := s.onDisconnect
	s.mu.Unlock()
	cb(err)
}

func (s *fakeSession) on(topic string) []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []published
	for _, p := range s.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeStation reports the configured statuses synchronously.
type fakeStation struct {
	mu       sync.Mutex
	ssid     string
	password string
	calls    int
	statuses []wifi.Status
	report   func(wifi.Status)
}

func (s *fakeStation) Connect(ssid, password string, report func(wifi.Status)) {
	s.mu.Lock()
	s.ssid, s.password = ssid, password
	s.calls++
	s.report = report
	statuses := s.statuses
	s.mu.Unlock()
	for _, st := range statuses {
		report(st)
	}
}

func (s *fakeStation) send(st wifi.Status) {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()
	report(st)
}

type recordingTelemetry struct {
	mu          sync.Mutex
	transitions []string
	commands    []int
	inbound     []string
}

func (r *recordingTelemetry) RecordTransition(from, to string) {
	r.mu.Lock()
	r.transitions = append(r.transitions, from+">"+to)
	r.mu.Unlock()
}

func (r *recordingTelemetry) RecordCommand(size int) {
	r.mu.Lock()
	r.commands = append(r.commands, size)
	r.mu.Unlock()
}

func (r *recordingTelemetry) RecordInbound(topic string, _ int) {
	r.mu.Lock()
	r.inbound = append(r.inbound, topic)
	r.mu.Unlock()
}

func (r *recordingTelemetry) snapshot() ([]string, []int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...), append([]int(nil), r.commands...), append([]string(nil), r.inbound...)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("uart gone") }

var testTopics = mqtt.Topics{
	From:   "neurite/dev-1/from",
	To:     "neurite/dev-1/to",
	Status: "neurite/dev-1/status",
	Will:   "neurite/dev-1/will",
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.WiFi.SSID = "lab"
	cfg.WiFi.Password = "secret"
	cfg.Command.Terminator = "\r"
	cfg.Connection.TickInterval = 5
	return cfg
}

type fixture struct {
	node      *Node
	session   *fakeSession
	station   *fakeStation
	telemetry *recordingTelemetry
	out       *bytes.Buffer
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		session:   newFakeSession(),
		station:   &fakeStation{statuses: []wifi.Status{wifi.StatusConnecting, wifi.StatusGotIP}},
		telemetry: &recordingTelemetry{},
		out:       &bytes.Buffer{},
	}
	n, err := New(cfg, Identity{DeviceID: "dev-1", Version: "test", Boot: 3}, Dependencies{
		Session:   f.session,
		Topics:    testTopics,
		Station:   f.station,
		Output:    f.out,
		Telemetry: f.telemetry,
	})
	require.NoError(t, err)
	f.node = n
	return f
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.node.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("node did not stop")
		}
	})
}

func (f *fixture) waitState(t *testing.T, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return f.node.State() == want },
		2*time.Second, 5*time.Millisecond, "state never reached %s", want)
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := New(testConfig(), Identity{}, Dependencies{Station: &fakeStation{}, Output: &bytes.Buffer{}})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = New(testConfig(), Identity{}, Dependencies{Session: newFakeSession(), Output: &bytes.Buffer{}})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = New(testConfig(), Identity{}, Dependencies{Session: newFakeSession(), Station: &fakeStation{}})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestNew_UnknownStatusEncoding(t *testing.T) {
	cfg := testConfig()
	cfg.Status.Encoding = "xml"
	_, err := New(cfg, Identity{}, Dependencies{
		Session: newFakeSession(),
		Station: &fakeStation{},
		Output:  &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, status.ErrUnknownEncoding)
}

func TestNode_ReachesSteadyAndChecksIn(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t)

	f.waitState(t, connection.StateSteady)

	f.station.mu.Lock()
	assert.Equal(t, "lab", f.station.ssid)
	assert.Equal(t, "secret", f.station.password)
	assert.Equal(t, 1, f.station.calls)
	f.station.mu.Unlock()

	assert.Equal(t, 1, f.session.connectCount())
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 1 },
		time.Second, 5*time.Millisecond)

	checkin := f.session.on(testTopics.To)[0]
	assert.Equal(t, "checkin: dev-1", string(checkin.payload))
	assert.Equal(t, byte(0), checkin.qos)
	assert.False(t, checkin.retained)
	assert.NotNil(t, f.session.handler(testTopics.From))

	transitions, _, _ := f.telemetry.snapshot()
	assert.Equal(t, []string{
		"idle>awaiting_network",
		"awaiting_network>awaiting_broker",
		"awaiting_broker>steady",
	}, transitions)
}

func TestNode_StaysAwaitingNetworkWithoutAddress(t *testing.T) {
	f := newFixture(t, testConfig())
	f.station.statuses = []wifi.Status{wifi.StatusConnecting, wifi.StatusWrongPassword}
	f.run(t)

	f.waitState(t, connection.StateAwaitingNetwork)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, connection.StateAwaitingNetwork, f.node.State())
	assert.Zero(t, f.session.connectCount())
}

func TestNode_RelaysInputLines(t *testing.T) {
	f := newFixture(t, testConfig())

	// Bytes before steady state have nowhere to go.
	f.node.InputByte('x')
	assert.Equal(t, uint64(1), f.node.Stats().DroppedBeforeStart)

	f.run(t)
	f.waitState(t, connection.StateSteady)
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 1 },
		time.Second, 5*time.Millisecond)

	for _, b := range []byte("led on\r\rled off\r") {
		f.node.InputByte(b)
	}

	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 3 },
		time.Second, 5*time.Millisecond)

	got := f.session.on(testTopics.To)
	assert.Equal(t, "led on", string(got[1].payload))
	assert.Equal(t, "led off", string(got[2].payload))
	assert.False(t, got[1].retained)

	_, commands, _ := f.telemetry.snapshot()
	assert.Equal(t, []int{6, 7}, commands)
	assert.Equal(t, uint64(2), f.node.Stats().Relayed)
}

func TestNode_WritesInboundMessages(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t)
	f.waitState(t, connection.StateSteady)

	var handler mqtt.MessageHandler
	require.Eventually(t, func() bool {
		handler = f.session.handler(testTopics.From)
		return handler != nil
	}, time.Second, 5*time.Millisecond)

	payload := []byte("blink 3")
	require.NoError(t, handler(testTopics.From, payload))
	payload[0] = 'X'

	assert.Equal(t, "blink 3\r\n", f.out.String())

	_, _, inbound := f.telemetry.snapshot()
	assert.Equal(t, []string{testTopics.From}, inbound)
}

func TestNode_OnMessageWriteFailure(t *testing.T) {
	n, err := New(testConfig(), Identity{DeviceID: "dev-1"}, Dependencies{
		Session: newFakeSession(),
		Station: &fakeStation{},
		Output:  failingWriter{},
	})
	require.NoError(t, err)

	err = n.onMessage(testTopics.From, []byte("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uart gone")
}

func TestNode_PublishesStatusInSteady(t *testing.T) {
	cfg := testConfig()
	cfg.Status.Interval = 60
	f := newFixture(t, cfg)
	f.run(t)
	f.waitState(t, connection.StateSteady)

	require.Eventually(t, func() bool { return len(f.session.on(testTopics.Status)) >= 1 },
		time.Second, 5*time.Millisecond)

	var report status.Report
	require.NoError(t, json.Unmarshal(f.session.on(testTopics.Status)[0].payload, &report))
	assert.Equal(t, "dev-1", report.DeviceID)
	assert.Equal(t, "steady", report.State)
	assert.Equal(t, 3, report.Boot)
	assert.Equal(t, "test", report.Version)

	// Rate limited to one per interval.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.session.on(testTopics.Status), 1)
}

func TestNode_StatusDisabledByDefault(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t)
	f.waitState(t, connection.StateSteady)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, f.session.on(testTopics.Status))
}

func TestNode_ForwardOnlyIgnoresBrokerLoss(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t)
	f.waitState(t, connection.StateSteady)

	f.session.dropBroker(errors.New("keepalive timeout"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, connection.StateSteady, f.node.State())
	assert.Equal(t, 1, f.session.connectCount())
}

func TestNode_ResumesAfterBrokerLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Connection.ResumeOnLoss = true
	f := newFixture(t, cfg)
	f.run(t)
	f.waitState(t, connection.StateSteady)
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 1 },
		time.Second, 5*time.Millisecond)

	f.session.setConnectOK(false)
	f.session.dropBroker(errors.New("keepalive timeout"))
	f.waitState(t, connection.StateAwaitingBroker)

	// The session reconnects on its own; the broker callback brings the
	// machine back and steady setup runs again.
	f.session.mu.Lock()
	f.session.connected = true
	onConnect := f.session.onConnect
	f.session.mu.Unlock()
	onConnect()

	f.waitState(t, connection.StateSteady)
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "checkin: dev-1", string(f.session.on(testTopics.To)[1].payload))
}

func TestNode_ResumesAfterNetworkLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Connection.ResumeOnLoss = true
	f := newFixture(t, cfg)
	f.run(t)
	f.waitState(t, connection.StateSteady)

	f.station.send(wifi.StatusNoAPFound)
	f.waitState(t, connection.StateAwaitingNetwork)

	f.station.send(wifi.StatusGotIP)
	f.waitState(t, connection.StateSteady)
}

func TestNode_NetworkFlapWithLiveSession(t *testing.T) {
	cfg := testConfig()
	cfg.Connection.ResumeOnLoss = true
	f := newFixture(t, cfg)
	f.run(t)
	f.waitState(t, connection.StateSteady)
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 1 },
		time.Second, 5*time.Millisecond)

	// The address drops and returns while the broker session stays up.
	f.station.send(wifi.StatusConnecting)
	f.waitState(t, connection.StateAwaitingNetwork)
	f.station.send(wifi.StatusGotIP)

	f.waitState(t, connection.StateSteady)
	assert.Equal(t, 2, f.session.connectCount())
	assert.Equal(t, 1, f.session.establishedCount(), "live session reused, not re-established")
	require.Eventually(t, func() bool { return len(f.session.on(testTopics.To)) == 2 },
		time.Second, 5*time.Millisecond)
}
