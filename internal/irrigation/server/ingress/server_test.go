package ingress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/plantd/internal/irrigation/codec"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/pkg/log"
	pkgmqtt "github.com/autopeer-io/plantd/pkg/mqtt"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

type fakeClient struct {
	mu         sync.Mutex
	awaitErr   error
	handlers   map[string]pkgmqtt.MessageHandler
	subscribed chan string
	stopped    bool
}

var _ pkgmqtt.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:   make(map[string]pkgmqtt.MessageHandler),
		subscribed: make(chan string, 16),
	}
}

func (f *fakeClient) Start(context.Context) error { return nil }

func (f *fakeClient) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeClient) Publish(context.Context, string, int, bool, []byte) error { return nil }

func (f *fakeClient) Subscribe(_ context.Context, filter string, _ int, h pkgmqtt.MessageHandler) error {
	f.mu.Lock()
	f.handlers[filter] = h
	f.mu.Unlock()
	f.subscribed <- filter
	return nil
}

func (f *fakeClient) Unsubscribe(context.Context, string) error { return nil }

func (f *fakeClient) AwaitConnection(context.Context) error { return f.awaitErr }

func (f *fakeClient) IsConnected() bool { return f.awaitErr == nil }

func (f *fakeClient) deliver(filter, topicName, payload string) {
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	h(context.Background(), topicName, []byte(payload))
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []model.Inbound
	got  chan struct{}
}

func (r *recordingHandler) Handle(_ context.Context, msg model.Inbound) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func newTestServer(client *fakeClient, h Handler, m *metrics.Metrics) *Server {
	topics := topic.NewBuilder("device")
	dec := codec.NewDecoder(topics, clocktesting.NewFakePassiveClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
	return NewServer(client, topics, dec, h,
		Config{SharedGroup: "plantd", QoS: 1, Workers: 4, QueueSize: 8},
		log.NewNopLogger(), m)
}

func waitSubscribed(t *testing.T, client *fakeClient, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-client.subscribed:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d subscriptions made", i, n)
		}
	}
}

func TestServerSubscribesAndDispatches(t *testing.T) {
	client := newFakeClient()
	h := &recordingHandler{got: make(chan struct{}, 8)}
	srv := newTestServer(client, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	waitSubscribed(t, client, 3)

	for _, filter := range []string{
		"$share/plantd/device/+/telemetry",
		"$share/plantd/device/+/status",
		"$share/plantd/device/+/command-result",
	} {
		client.mu.Lock()
		_, ok := client.handlers[filter]
		client.mu.Unlock()
		if !ok {
			t.Errorf("no subscription for %s", filter)
		}
	}

	client.deliver("$share/plantd/device/+/telemetry", "device/dev-1/telemetry", `{"soil_moisture": 20}`)
	client.deliver("$share/plantd/device/+/status", "device/dev-1/status", `{"status": "online"}`)
	for i := 0; i < 2; i++ {
		select {
		case <-h.got:
		case <-time.After(time.Second):
			t.Fatal("message was not handled")
		}
	}

	h.mu.Lock()
	if _, ok := h.msgs[0].(model.Telemetry); !ok {
		t.Errorf("first message = %T, want Telemetry", h.msgs[0])
	}
	if _, ok := h.msgs[1].(model.Status); !ok {
		t.Errorf("second message = %T, want Status", h.msgs[1])
	}
	h.mu.Unlock()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start err = %v", err)
	}
	if !client.stopped {
		t.Error("client was not disconnected")
	}
}

func TestServerRejectsMalformedPayload(t *testing.T) {
	client := newFakeClient()
	h := &recordingHandler{got: make(chan struct{}, 1)}
	m := metrics.New()
	srv := newTestServer(client, h, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	waitSubscribed(t, client, 3)

	client.deliver("$share/plantd/device/+/telemetry", "device/dev-1/telemetry", `not json`)
	cancel()
	<-done

	if n := len(h.msgs); n != 0 {
		t.Errorf("handler saw %d messages, want 0", n)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `plantd_messages_total{kind="telemetry",result="malformed"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output lacks %s", want)
	}
}

func TestServerFailsWhenBrokerUnreachable(t *testing.T) {
	client := newFakeClient()
	client.awaitErr = errors.New("dial tcp: connection refused")
	srv := newTestServer(client, &recordingHandler{got: make(chan struct{}, 1)}, nil)

	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected startup error")
	}
}
